/*
Package storage provides durable state for the release orchestrator,
backed by BoltDB.

Three buckets hold everything that must survive a process restart:

	environments  two rows (blue, green): image tag, revision, active flag
	records       append-only deployment log, keyed by monotonic sequence
	state         the fatal circuit-breaker flag

# Active-Environment Invariant

Exactly one environment is active at all times after bootstrap. SetActive
rewrites both rows inside a single BoltDB transaction, so the invariant
holds even if the process dies mid-update: the transaction either commits
fully or not at all.

# Record Log

Deployment records are append-only. Keys are big-endian uint64 sequence
numbers from the bucket's NextSequence counter, which makes cursor
iteration equal to append order. LastSwitchedRecord walks the log
backwards to find the rollback target, the most recent release that
actually took traffic.
*/
package storage
