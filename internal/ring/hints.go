package ring

import (
	"github.com/dbbuilder-org/quento/internal/domain"
)

// Hints is the phase-specific presentation content other components read:
// an input placeholder and suggested quick replies. These are pure data
// lookups, not state.
type Hints struct {
	Title        string
	Placeholder  string
	QuickReplies []string
}

var phaseHints = map[domain.RingPhase]Hints{
	domain.RingCore: {
		Title:       "Your Story",
		Placeholder: "Tell me about your business and how it got started...",
		QuickReplies: []string{
			"Here's how we got started",
			"What my business does",
			"Who our customers are",
		},
	},
	domain.RingDiscover: {
		Title:       "Web Presence",
		Placeholder: "Share your website URL and we'll analyze your online presence...",
		QuickReplies: []string{
			"Analyze my website",
			"How do we compare to competitors?",
			"What are my quick wins?",
		},
	},
	domain.RingPlan: {
		Title:       "Strategy",
		Placeholder: "Let's shape your growth strategy from what we've learned...",
		QuickReplies: []string{
			"Generate my strategy",
			"What should I prioritize?",
			"Show my 90-day plan",
		},
	},
	domain.RingExecute: {
		Title:       "Action",
		Placeholder: "Which action do you want to tackle first?",
		QuickReplies: []string{
			"Show my action items",
			"Mark one as done",
			"I'm stuck on something",
		},
	},
	domain.RingOptimize: {
		Title:       "Optimize",
		Placeholder: "What results are you seeing? Let's refine what's working...",
		QuickReplies: []string{
			"Review my progress",
			"What should change?",
			"Re-run the analysis",
		},
	},
}

// PhaseHints returns the presentation hints for a phase. Unknown phases get
// the core hints.
func PhaseHints(p domain.RingPhase) Hints {
	if h, ok := phaseHints[p]; ok {
		return h
	}
	return phaseHints[domain.RingCore]
}
