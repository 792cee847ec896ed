// Package utils provides utility functions for the episodic library.
//
// This package contains helper functions for:
//   - Vector math and score ranking (vector.go)
//   - Bounded concurrent execution (concurrent.go)
//   - Panic recovery for goroutines (recovery.go)
//   - Ids and input validation (helpers.go)
//   - Parquet archiving of ingested graph data (parquet_writer.go)
//
// Entity extraction and resolution live in the maintenance subpackage.
package utils
