// Package testutil holds test helpers shared across packages: series fixtures, an
// in-memory NATS publish/subscribe mock, and store wrappers that inject failures.
//
//	store, _ := testutil.NewFaultyProvider(memstore.NewProvider()).Store(ctx, "1334", "rain")
//	store.FailNext(testutil.OpAppendData, errors.ErrStorageUnavailable)
package testutil
