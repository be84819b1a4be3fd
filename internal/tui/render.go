package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/tui/styles"
)

// FileFilter selects which modified files are shown. Nil shows all.
type FileFilter func(path string) bool

// RenderHeader renders the one-line session summary.
func RenderHeader(sess *session.Session) string {
	return lipgloss.JoinHorizontal(lipgloss.Center,
		styles.Title.Render(sess.ID),
		" ",
		styles.Badge(string(sess.Status)),
		styles.Muted.Render(fmt.Sprintf(" round %d · v%d", sess.CurrentRound, sess.Version)),
	)
}

// RenderSession renders the task and every exchange, oldest first.
func RenderSession(sess *session.Session, filter FileFilter, width int) string {
	var b strings.Builder
	b.WriteString(RenderHeader(sess))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render(sess.TaskDescription))
	b.WriteString("\n\n")

	if len(sess.Exchanges) == 0 {
		b.WriteString(styles.Muted.Render("No exchanges yet."))
		b.WriteString("\n")
		return b.String()
	}
	for _, ex := range sess.Exchanges {
		b.WriteString(RenderExchange(ex, filter, width))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderExchange renders a single exchange as a bordered block.
func RenderExchange(ex session.Exchange, filter FileFilter, width int) string {
	var lines []string

	header := fmt.Sprintf("Round %d · %s", ex.Round, ex.Kind)
	if ex.Author != "" {
		header += " · " + ex.Author
	}
	headerLine := styles.ExchangeHeader.Render(header)
	if ex.Verdict != "" {
		verdict := lipgloss.NewStyle().Bold(true).Foreground(styles.VerdictColor(string(ex.Verdict)))
		headerLine += "  " + verdict.Render(strings.ToUpper(string(ex.Verdict)))
	}
	headerLine += styles.Muted.Render("  " + ex.Timestamp.Local().Format(time.DateTime))
	lines = append(lines, headerLine)

	if payload := strings.TrimSpace(ex.Payload); payload != "" {
		lines = append(lines, "", payload)
	}

	files := filterFiles(ex.FilesModified, filter)
	if len(files) > 0 {
		lines = append(lines, "")
		for _, f := range files {
			lines = append(lines, styles.FileItem.Render("  "+f))
		}
	}

	box := styles.ExchangeBox
	if width > 4 {
		box = box.Width(width - 2)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func filterFiles(files []string, filter FileFilter) []string {
	if filter == nil {
		return files
	}
	var out []string
	for _, f := range files {
		if filter(f) {
			out = append(out, f)
		}
	}
	return out
}
