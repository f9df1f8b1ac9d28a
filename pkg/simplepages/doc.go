// Package simplepages serves pages composed of ordered, heterogeneous content
// items (video, audio, text), each with its own view counter.
//
// A page never references a content record directly. Each placement points at
// a Wrapper, a single row standing for a (kind, id) pair, and the Registry maps
// the kind tag to the KindStore that owns records of that kind. Adding a kind
// means implementing a Record and a KindStore and registering it; the ordering
// and aggregation code does not change.
//
// Page Views
//
// GetPageDetail loads the ordered placements in one call, groups the
// referenced records by kind and fetches each group in one call, then hands
// the resolved refs to a CounterDispatcher. The synchronous dispatcher
// (CounterService) applies relative increments in the store; the deferred one
// in the counters subpackage queues per-kind jobs for a retrying worker.
//
// Repositories (memory, Postgres, gorm/SQLite) are provided under repo/.
package simplepages
