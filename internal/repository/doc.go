// Package repository groups the store implementations of taskflow.
//
// # Data Stores
//
//   - mongo: the primary document store, authoritative for every entity
//   - postgres: the secondary relational mirror and the persistent failure ledger
//   - clickhouse: the append-only sync event log
//
// Interfaces are declared by their consumers (dualwrite, service) and the
// subpackages provide the concrete implementations.
package repository
