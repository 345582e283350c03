// Package handler contains the HTTP handlers of the TaskFlow admin server.
//
// Handlers parse requests, call the sync administration service and map
// application errors onto HTTP status codes through the apperrors package.
//
// # Route Organization
//
//   - /health, /livez, /readyz, /version - probes (no auth)
//   - /api/v1/sync/* - failure ledger, record status, reconciliation and
//     batch mutations
//
// Routes that write to the stores accept a rate limiting handler.
//
// # Thread Safety
//
// All handlers are safe for concurrent use.
package handler
