// Package api exposes the relay over HTTP.
//
// Public routes:
//   - POST /api/collect accepts a form submission (JSON or url-encoded)
//   - GET /healthz
//
// Operator routes, guarded by the X-API-Key header:
//   - GET /api/collect/pending
//   - GET /api/collect/pending/{traceID}
//   - POST /api/collect/pending/{traceID}/retry
//   - GET /api/collect/stats
package api
