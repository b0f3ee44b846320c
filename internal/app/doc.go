// Package app wires the crunch server together.
//
// New builds, from a loaded config.Config:
//
//	OpenTelemetry providers → batch and websocket metrics
//	websocket Hub ← StatusBroadcaster ← operations.Manager
//	JobQueue (MaxConcurrentBatches workers, BatchTimeout per batch)
//	chi router and http.Server
//
// Run listens on the configured port and blocks until the context ends or
// SIGINT/SIGTERM arrives. Shutdown stops accepting requests, lets running
// batches finish within ShutdownTimeout, closes websocket clients and
// flushes telemetry.
package app
