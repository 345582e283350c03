// Package dualwrite keeps the primary document store and the secondary
// relational store convergent.
//
// Every mutation goes through the Coordinator, which runs the primary
// write and the transformed secondary write concurrently on a bounded
// pool, waits for both, and reacts to partial failure:
//
//   - create: the record is deleted again from the store that accepted it
//   - update: the secondary row is upserted once more, then marked FAILED
//   - delete: the failure is recorded, nothing is undone
//
// Each store write is retried with exponential backoff and is idempotent
// under retry because both stores key records by the same shared id.
//
// Entity mappings are declared once in a Registry and turned into rows by
// the Transformer. Unrecoverable failures are appended to the Ledger and
// delivered to its sinks in the background.
//
//	registry, _ := dualwrite.NewDefaultRegistry()
//	ledger := dualwrite.NewLedger(logger, 256, sinks...)
//	go ledger.Run(ctx)
//	coord := dualwrite.New(mongoStore, pgStore, registry, ledger, logger, opts)
//
//	if err := coord.Create(ctx, "tasks", doc, id.NewSharedID()); err != nil {
//	    var werr *dualwrite.WriteError
//	    if errors.As(err, &werr) && werr.Partial() { ... }
//	}
package dualwrite
