// Package configstore persists automatic process definitions in a NATS JetStream
// key-value bucket, one JSON document per process keyed by process ID.
//
// Every write compiles the definition first, so the bucket never holds a definition
// that cannot run. Version is the KV revision of the stored document: Update succeeds
// only when the caller's Version is still the stored one.
//
// Watch delivers the current definitions and then every change, which is how a
// running service picks up edits without a restart:
//
//	err := store.Watch(ctx, func(ev configstore.Event) {
//	    switch ev.Op {
//	    case configstore.OpPut:
//	        set.Put(ev.Process)
//	    case configstore.OpDelete:
//	        set.Remove(ev.ID)
//	    }
//	})
package configstore
