// Package export renders strategies as shareable documents. The markdown
// renderer runs locally; other formats are produced server-side and only
// referenced here by their content types.
package export

import (
	"fmt"
	"strings"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// Supported export formats.
const (
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
	FormatNotion   = "notion"
	FormatTrello   = "trello"
)

var formats = map[string]bool{
	FormatMarkdown: true,
	FormatPDF:      true,
	FormatNotion:   true,
	FormatTrello:   true,
}

// ValidFormat reports whether f is a supported export format.
func ValidFormat(f string) bool {
	return formats[f]
}

// statusMarks maps action statuses to their task-list rendering.
var statusMarks = map[domain.ActionStatus]string{
	domain.ActionPending:    "[ ]",
	domain.ActionInProgress: "[~]",
	domain.ActionCompleted:  "[x]",
	domain.ActionBlocked:    "[!]",
}

// Markdown renders the strategy as a markdown document. Empty sections are
// omitted.
func Markdown(s *domain.Strategy) string {
	var b strings.Builder

	title := s.Title
	if title == "" {
		title = "Growth Strategy"
	}
	fmt.Fprintf(&b, "# %s\n", title)

	if s.ExecutiveSummary != "" {
		b.WriteString("\n## Executive Summary\n\n")
		b.WriteString(s.ExecutiveSummary)
		b.WriteString("\n")
	}
	if s.VisionStatement != "" {
		b.WriteString("\n## Vision\n\n")
		b.WriteString(s.VisionStatement)
		b.WriteString("\n")
	}

	writeList(&b, "Key Strengths", s.KeyStrengths)
	writeList(&b, "Critical Gaps", s.CriticalGaps)

	if len(s.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n")
		for _, r := range s.Recommendations {
			fmt.Fprintf(&b, "\n### %s (%s priority)\n\n%s\n", r.Title, r.Priority, r.Summary)
			if r.Impact != "" {
				fmt.Fprintf(&b, "\n**Impact:** %s\n", r.Impact)
			}
			if r.CurrentState != "" && r.TargetState != "" {
				fmt.Fprintf(&b, "\n**From:** %s\n**To:** %s\n", r.CurrentState, r.TargetState)
			}
		}
	}

	if len(s.ActionItems) > 0 {
		b.WriteString("\n## Action Items\n\n")
		for _, item := range s.ActionItems {
			mark, ok := statusMarks[item.Status]
			if !ok {
				mark = "[ ]"
			}
			fmt.Fprintf(&b, "- %s **%s** (%s priority, %s effort)", mark, item.Title, item.Priority, item.Effort)
			if item.DueDate != "" {
				fmt.Fprintf(&b, " (due %s)", item.DueDate)
			}
			b.WriteString("\n")
			if item.Description != "" {
				fmt.Fprintf(&b, "  %s\n", item.Description)
			}
		}
	}

	writeList(&b, "90-Day Priorities", s.NinetyDayPriorities)

	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
