// Package coordinator implements the control plane of the distributed
// crawler: the frontier of pending URLs, the visited index, per-domain
// politeness state, the run lifecycle state machine, and the dispatch
// operations workers call to obtain and report work.
//
// All state is scoped to a run. Operations on a given run are serialized;
// each mutating operation ends with exactly one atomic snapshot write, so
// an acknowledged effect survives a process restart.
package coordinator
