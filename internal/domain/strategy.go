package domain

import (
	"time"
)

// StrategyStatus is the lifecycle state of a generated strategy.
type StrategyStatus string

const (
	StrategyGenerating StrategyStatus = "generating"
	StrategyDraft      StrategyStatus = "draft"
	StrategyActive     StrategyStatus = "active"
	StrategyCompleted  StrategyStatus = "completed"
	StrategyArchived   StrategyStatus = "archived"
)

// Generating reports whether the strategy is still being produced
// server-side and should be polled rather than read.
func (s StrategyStatus) Generating() bool {
	return s == StrategyGenerating
}

// Priority ranks how urgent a recommendation or action item is.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Effort sizes the work an action item requires.
type Effort string

const (
	EffortSmall  Effort = "small"
	EffortMedium Effort = "medium"
	EffortLarge  Effort = "large"
)

// ActionStatus is the user-visible progress state of an action item.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionBlocked    ActionStatus = "blocked"
)

// actionCycle is the tap-to-advance rotation. Blocked items resume work
// rather than restarting the cycle.
var actionCycle = map[ActionStatus]ActionStatus{
	ActionPending:    ActionInProgress,
	ActionInProgress: ActionCompleted,
	ActionCompleted:  ActionPending,
	ActionBlocked:    ActionInProgress,
}

// NextActionStatus returns the status a single tap advances s to. Unknown
// statuses reset to pending.
func NextActionStatus(s ActionStatus) ActionStatus {
	if next, ok := actionCycle[s]; ok {
		return next
	}
	return ActionPending
}

// Recommendation is a single strategic recommendation inside a strategy.
type Recommendation struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Priority     Priority `json:"priority"`
	Summary      string   `json:"summary"`
	Impact       string   `json:"impact"`
	CurrentState string   `json:"current_state,omitempty"`
	TargetState  string   `json:"target_state,omitempty"`
}

// ActionItem is a concrete task derived from a strategy. Status is mutated
// by the user and every mutation round-trips to the server.
type ActionItem struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    Priority     `json:"priority"`
	Effort      Effort       `json:"effort"`
	Category    string       `json:"category,omitempty"`
	Status      ActionStatus `json:"status"`
	DueDate     string       `json:"due_date,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Strategy is a generated growth strategy keyed to an analysis.
type Strategy struct {
	ID                  string           `json:"id"`
	Title               string           `json:"title,omitempty"`
	Status              StrategyStatus   `json:"status"`
	ExecutiveSummary    string           `json:"executive_summary,omitempty"`
	VisionStatement     string           `json:"vision_statement,omitempty"`
	KeyStrengths        []string         `json:"key_strengths,omitempty"`
	CriticalGaps        []string         `json:"critical_gaps,omitempty"`
	Recommendations     []Recommendation `json:"recommendations,omitempty"`
	ActionItems         []ActionItem     `json:"action_items,omitempty"`
	NinetyDayPriorities []string         `json:"ninety_day_priorities,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Action returns the action item with the given id, or nil.
func (s *Strategy) Action(id string) *ActionItem {
	for i := range s.ActionItems {
		if s.ActionItems[i].ID == id {
			return &s.ActionItems[i]
		}
	}
	return nil
}
