// Package worker implements the batch scheduler: partitioning activated
// campaigns into time-sliced batches and processing due batches on each
// externally triggered tick.
//
// There is no resident polling loop. An external cron hits the tick
// endpoint every few minutes; each invocation runs to completion within
// that request. Overlapping ticks are serialized with a distributed
// lock, and re-entrant batch processing is guarded by a status
// compare-and-swap on the batch row.
package worker
