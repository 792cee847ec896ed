// Package nlp provides the chat-completion clients used for extraction.
//
// OpenAIClient talks to OpenAI, Azure OpenAI deployments and
// OpenAI-compatible services (Ollama, vLLM, ...) through go-openai.
//
// # Client Wrappers
//
// Wrappers compose around any Client:
//   - RetryClient: retries transient failures with exponential backoff
//   - CircuitBreakerClient: stops calling a failing provider and raises an alert
//   - TokenTrackingClient: records token usage to Parquet files
//
// # Usage
//
//	base, err := nlp.NewOpenAIClient(nlp.NewLLMConfig().WithAPIKey(key))
//	client := nlp.NewRetryClient(base, nlp.DefaultRetryConfig(), logger)
//	resp, err := client.ChatWithStructuredOutput(ctx, messages, schema)
//
// # Error Handling
//
// Provider failures are mapped onto RateLimitError, RefusalError,
// EmptyResponseError and StatusError; all support errors.Is.
package nlp
