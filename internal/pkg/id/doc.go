// Package id provides identifier generation for taskflow.
//
// The shared identifier is generated once by the caller of a dual write and
// used verbatim as the document _id in the primary store and as the
// mongo_id column in the secondary store. It never changes after creation.
//
//	sharedID := id.NewSharedID()
//	err := coordinator.Create(ctx, "tasks", payload, sharedID)
//
// IsObjectIDHex recognises legacy 24-character hex ids so that reference
// fields can be stringified consistently during transformation.
//
// All functions are safe for concurrent use.
package id
