package ace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kokoro-ai/kokoro/core"
)

// Mining thresholds. A pattern must recur before it becomes a bullet, and a
// retrieval habit must be clearly wasteful before it yields a rule.
const (
	pairThreshold      = 3
	usageRateThreshold = 0.30
)

// Reflection thresholds on per-turn engagement.
const (
	goodEngagement = 0.6
	badEngagement  = 0.4
)

// candidate is a mined bullet that curation may add.
type candidate struct {
	section   string
	condition string
	content   string
}

// mineStrategies extracts recurring (emotion, mode) pairs from the turn logs.
// A pair seen at least pairThreshold times becomes a retrieval strategy.
func mineStrategies(logs []core.TurnLog) []candidate {
	type pair struct{ emotion, mode string }
	counts := make(map[pair]int)
	for _, l := range logs {
		if l.Emotion == "" || l.Mode == "" {
			continue
		}
		counts[pair{l.Emotion, l.Mode}]++
	}

	pairs := make([]pair, 0, len(counts))
	for p, n := range counts {
		if n >= pairThreshold {
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].emotion != pairs[j].emotion {
			return pairs[i].emotion < pairs[j].emotion
		}
		return pairs[i].mode < pairs[j].mode
	})

	out := make([]candidate, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, candidate{
			section:   core.SectionRetrievalStrategies,
			condition: fmt.Sprintf("emotion=%s", p.emotion),
			content: fmt.Sprintf("When the user feels %s, %s mode has landed well recently; retrieve memories that support it.",
				p.emotion, p.mode),
		})
	}
	return out
}

// mineRetrievalRules proposes a filtering rule when any batch in the window
// had most of its retrieved memories go unused. A single wasteful batch is
// enough; dedup keeps repeat offenders from stacking bullets.
func mineRetrievalRules(logs []core.RetrievalLog) []candidate {
	for _, l := range logs {
		if l.UsageRate() < usageRateThreshold {
			return []candidate{{
				section:   core.SectionContextEngineeringRules,
				condition: "retrieval_usage_low",
				content:   "Most retrieved memories go unused in replies; retrieve fewer, more targeted items per turn.",
			}}
		}
	}
	return nil
}

// tally is the per-bullet outcome count for one reflection pass.
type tally struct {
	good int
	bad  int
}

// reflect grades every bullet that was active during the window. A turn is
// good when engagement held up and the session did not end abruptly; bad when
// engagement collapsed or it did.
func reflect(logs []core.TurnLog) map[string]tally {
	tallies := make(map[string]tally)
	for _, l := range logs {
		good := l.UserEngagement >= goodEngagement && !l.EndedAbruptly
		bad := l.UserEngagement < badEngagement || l.EndedAbruptly
		for _, id := range l.ActiveBullets {
			t := tallies[id]
			if good {
				t.good++
			}
			if bad {
				t.bad++
			}
			tallies[id] = t
		}
	}
	return tallies
}

// verdict of one reflection pass for a bullet. A tag requires at least a 2x
// majority; mixed evidence stays neutral.
func (t tally) helpful() bool { return t.good > 0 && t.good >= 2*t.bad }
func (t tally) harmful() bool { return t.bad > 0 && t.bad >= 2*t.good }

// normalize prepares a condition or content string for whole-playbook
// deduplication.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
