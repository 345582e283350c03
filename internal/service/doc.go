// Package service contains the sync administration layer of taskflow.
//
// The reconciliation service walks every registered collection and repairs
// the secondary store from the primary. The admin service exposes the
// operator surface (failure ledger, record status, retries, batches) used
// by the HTTP handlers, the CLI and the background worker.
//
// Services depend on interfaces declared next to the consumer, so the
// concrete stores live in the repository packages.
//
// All services are safe for concurrent use.
package service
