// Package llm holds the helpers that turn raw LLM replies into Go values:
// think-tag stripping, JSON extraction and repair, and a structured-call
// loop that asks the model to fix unparseable output.
package llm
