// Package dialogue implements the synchronous turn pipeline: context
// assembly, the listener/emotion/planner/coach generation stages, tone
// selection, the safety override, and the post-turn side effects (persistence
// and trigger publication).
package dialogue
