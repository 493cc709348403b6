package dialogue

import "github.com/kokoro-ai/kokoro/core"

// SelectTone maps the emotional read and the plan onto a response tone. It is
// a pure function; the only thing that ever changes a selected tone afterwards
// is a safety override forcing ToneSeriousDirect.
func SelectTone(emotion core.EmotionState, plan core.ModePlan) string {
	switch plan.Mode {
	case core.ModeSupport:
		if emotion.Primary == core.EmotionSadness || emotion.Intensity == core.IntensityHigh {
			return core.ToneWarmEmpathic
		}
		return core.ToneSupportiveCaring
	case core.ModeCoach:
		if plan.Goal == core.GoalSuggestTinyStep {
			return core.ToneCoachGrounded
		}
		return core.ToneSupportiveCaring
	case core.ModeGratitude:
		return core.ToneCheerfulLight
	case core.ModeGame:
		return core.TonePlayfulEnergetic
	case core.ModeReminder:
		return core.ToneSeriousDirect
	default:
		return core.ToneCalmSoothing
	}
}
