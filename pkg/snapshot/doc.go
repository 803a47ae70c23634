// Package snapshot mirrors a string cache to a document in a backing store.
//
// A snapshot cache wraps cache.Memory[string, string]. Open loads the
// document in the background; afterwards every mutation requests a save
// that runs after a quiet interval, so bursts of writes coalesce into one
// store write. Saves compare a fingerprint of the serialized content with
// the last loaded or saved one and skip unchanged content.
//
// The document is a flat JSON object of string values in insertion order:
//
//	{"3f2a9c0d1e4b5a67":"thumb/3f2a.webp","9b1c...":"..."}
//
// No TTLs are stored; reloaded entries never expire. Non-string values are
// skipped and a document that is not an object loads as an empty cache.
//
// Lifecycle:
//
//	c, err := snapshot.Open(store, "cache.json", cfg)
//	if err != nil {
//	    return err
//	}
//	if err := c.Wait(ctx); err != nil {
//	    log.Warn("snapshot not loaded", "error", err)
//	}
//	c.Set("k", "v")
//	...
//	if err := c.Close(ctx); err != nil { // final save
//	    return err
//	}
//
// Mutations made before the load completes are kept: the loaded document
// never overwrites or restores a key that was set or deleted meanwhile,
// and a Clear discards the document entirely.
package snapshot
