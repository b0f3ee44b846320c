// Package http exposes batches over a JSON API.
//
// Handlers stay thin: requests are decoded and validated with
// middleware.RequestValidator, handed to the job queue, and every error is
// rendered as problem details by errors.ErrorHandler.
//
// Routes:
//
//	POST   /api/v1/batches              queue a batch (202)
//	GET    /api/v1/batches              list batches (?status=&limit=)
//	GET    /api/v1/batches/{id}         batch state with live step progress
//	GET    /api/v1/batches/{id}/results aggregate rows of a completed batch
//	DELETE /api/v1/batches/{id}         cancel a pending or running batch
//	GET    /api/v1/scan?dir=            measurement files and their types
//	GET    /api/health                  queue and websocket counters
//	GET    /metrics                     prometheus exposition
//	GET    /ws                          batch progress stream
package http
