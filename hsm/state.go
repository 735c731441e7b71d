package hsm

// State identifies a node in the machine's state domain. Any comparable
// value works; callers typically use a string or a small integer-backed
// named type.
type State any

// Trigger identifies an event that may cause a transition. Any comparable
// value works.
type Trigger any

// MaxTriggerParameters is the highest number of typed parameters a single
// trigger may declare (spec: "0..3 typed parameters").
const MaxTriggerParameters = 3
