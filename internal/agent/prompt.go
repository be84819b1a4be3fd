package agent

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/duo/internal/session"
)

// Markers the run driver looks for in agent output.
const (
	FileMarker    = "FILE:"
	VerdictMarker = "VERDICT:"
)

// BuildPrompt formats the prompt for the invocation's role.
func BuildPrompt(task string, inv Invocation) string {
	if inv.Role == session.RoleReviewer {
		return BuildReviewerPrompt(task, inv)
	}
	return BuildSubmitterPrompt(task, inv)
}

// BuildSubmitterPrompt asks for an implementation of task, including the
// reviewer's feedback from earlier rounds.
func BuildSubmitterPrompt(task string, inv Invocation) string {
	var sb strings.Builder
	sb.WriteString("# Task: ")
	sb.WriteString(task)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "You are the submitter in round %d of code review session %s.\n", inv.Round, inv.SessionID)

	reviews := filterKind(inv.History, session.KindReview)
	if len(reviews) > 0 {
		sb.WriteString("\n## Reviewer feedback\n")
		for _, ex := range reviews {
			fmt.Fprintf(&sb, "\n### Round %d (%s)\n\n%s\n", ex.Round, ex.Verdict, ex.Payload)
		}
	}

	sb.WriteString("\n## Instructions\n\n")
	if len(reviews) > 0 {
		sb.WriteString("Address every point of the latest review. ")
	}
	sb.WriteString("Make the changes in the working tree, then describe what you changed.\n")
	fmt.Fprintf(&sb, "List every file you modified on its own line as `%s <path>`.\n", FileMarker)
	return sb.String()
}

// BuildReviewerPrompt asks for a review of the latest code submission and
// a single verdict line.
func BuildReviewerPrompt(task string, inv Invocation) string {
	var sb strings.Builder
	sb.WriteString("# Review: ")
	sb.WriteString(task)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "You are the reviewer in round %d of code review session %s.\n", inv.Round, inv.SessionID)

	submissions := filterKind(inv.History, session.KindCodeSubmission)
	if len(submissions) > 0 {
		latest := submissions[len(submissions)-1]
		sb.WriteString("\n## Submission\n\n")
		sb.WriteString(latest.Payload)
		sb.WriteString("\n")
		if len(latest.FilesModified) > 0 {
			sb.WriteString("\n## Files modified\n")
			for _, f := range latest.FilesModified {
				sb.WriteString("- ")
				sb.WriteString(f)
				sb.WriteString("\n")
			}
		}
	}

	if earlier := filterKind(inv.History, session.KindReview); len(earlier) > 0 {
		sb.WriteString("\n## Your earlier reviews\n")
		for _, ex := range earlier {
			fmt.Fprintf(&sb, "\n### Round %d (%s)\n\n%s\n", ex.Round, ex.Verdict, ex.Payload)
		}
	}

	sb.WriteString("\n## Instructions\n\n")
	sb.WriteString("Review the submission against the task. Inspect the files in the working tree.\n")
	fmt.Fprintf(&sb, "End your response with exactly one line `%s <verdict>` where <verdict> is one of: ", VerdictMarker)
	names := make([]string, 0, len(session.Verdicts()))
	for _, v := range session.Verdicts() {
		names = append(names, strings.ToUpper(string(v)))
	}
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(".\n")
	return sb.String()
}

func filterKind(history []session.Exchange, kind session.Kind) []session.Exchange {
	var out []session.Exchange
	for _, ex := range history {
		if ex.Kind == kind {
			out = append(out, ex)
		}
	}
	return out
}
