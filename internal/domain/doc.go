// Package domain contains the types shared by the dual-store consistency
// layer of taskflow.
//
// # Key Types
//
//   - Document: a record in the primary (document) store shape
//   - Row / Record: a record in the secondary (relational) store shape
//   - FailureRecord: an entry of the sync failure ledger
//   - WriteOutcome: one store's result of a coordinated write
//   - ReconcileReport: the result of a reconciliation run
//
// The shared identifier joining a document to its row is stored as _id in
// the primary store and as the mongo_id column in the secondary store.
//
// # Naming Conventions
//
// Types ending in "Options" configure operations.
// Types ending in "Filter" are used for query operations.
package domain
