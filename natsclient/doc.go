// Package natsclient wraps a NATS connection for the service.
//
// Client handles connection state, reconnection callbacks and a circuit breaker
// that fails fast after repeated connection failures. It carries the two kinds of
// traffic the service needs:
//
//   - core NATS publish/subscribe for series-update triggers and run notifications
//   - JetStream key-value buckets for series data and process definitions
//
// KVStore adds revision-checked writes on top of a bucket. UpdateWithRetry is the
// read-modify-write loop used for appends: it re-reads and re-applies the update
// when a concurrent writer bumped the revision.
//
//	client, err := natsclient.NewClient(url, natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "series"})
//	kv := client.NewKVStore(bucket)
//	_, err = kv.UpdateWithRetry(ctx, "1334.rain", func(cur []byte) ([]byte, error) {
//	    return appendRecords(cur)
//	})
//
// Connection errors match errors.ErrNoConnection and are classified transient.
//
// TestClient starts a NATS server in a container with testcontainers-go; tests that
// use it carry the integration build tag.
package natsclient
