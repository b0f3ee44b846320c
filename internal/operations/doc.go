// Package operations runs measurement batches.
//
// A batch walks a fixed pipeline of steps:
//
//	discover -> scan -> extract -> aggregate -> evaluate -> export
//
// Each step reads and writes the shared BatchState and reports progress via
// a ProgressReporter. The Manager runs one batch synchronously and wraps it
// in OpenTelemetry spans and metrics. The JobQueue runs submitted batches on
// a bounded worker pool for the HTTP server.
//
// A file that cannot be used is recorded in the BatchReport and the batch
// goes on. A batch in which no file contributed a sample fails with
// dataprocessing.ErrNoValidResults.
package operations
