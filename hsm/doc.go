// Package hsm implements a pure, in-memory hierarchical state machine: states,
// nullary and parameterized triggers, guards, entry/exit callbacks, hierarchy,
// and permitted-trigger queries. It performs no I/O — persistence, timers,
// deduplication and replay live in the sibling packages (eventlog, timer,
// dedupe, grain) that drive this engine from the outside.
package hsm
