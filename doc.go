// Package autoprocess keeps derived environmental time series up to date.
//
// An automatic process reads one series of a station and appends to another:
//
//   - range check: removes values outside hard bounds (RANGE) and flags values outside
//     soft bounds (SUSPECT)
//   - curve interpolation: maps values through dated calibration curves, such as a
//     stage-discharge rating
//   - aggregation: regularizes a series to its nominal step and reduces it to a coarser
//     one (sum, mean, max, min), flagging incomplete windows MISS
//
// Processing is incremental. Each run reads only the source records after the end of
// the target and appends the result, so the target never rewrites history.
//
// # Layout
//
//   - timeseries, pkg/timestep, pkg/timestamp: records, series, steps and timestamps
//   - processor/rangecheck, processor/curve, processor/aggregate: the pure engines
//   - autoprocess: definitions and their compiled, immutable form
//   - storage and storage/{filestore,kvstore,memstore}: where series live
//   - engine: one incremental run of one process
//   - scheduler: when runs happen, with retries, rate limits and health
//   - config, configstore: file and NATS key-value configuration
//   - natsclient, metric, health: NATS, Prometheus and /healthz plumbing
//   - cmd/autoprocess: the service binary
package autoprocess
