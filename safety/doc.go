// Package safety implements the safety side of the platform: the per-user
// bounded command queue, the bus intake that fills it from safety.command.v1
// events, and the safety agent that turns safety.trigger.v1 events into
// concrete check-in directives.
//
// The queue is the only place in the system where bus traffic gains stronger
// semantics: a command survives until the user's next dialogue turn consumes
// it (or until five fresher commands push it out).
package safety
