// Package coach implements the asynchronous coaching agent. It consumes
// coach.trigger.v1 events, drafts a small follow-up plan with the model and
// dispatches it through the scheduler and notifier collaborators.
package coach
