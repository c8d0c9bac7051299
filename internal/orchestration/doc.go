// Package orchestration contains the multi-node setup engine.
//
// A Controller owns an ordered list of named steps and a set of node
// handles. Global steps run once for the whole cluster, per-node steps
// fan out across the node set under a concurrency bound, and every step
// body passes through an idempotency registry so that re-running a
// partially failed setup skips work that already completed. A failure
// inside a per-node step faults only that node; the remaining nodes
// keep going.
package orchestration
