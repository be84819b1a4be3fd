package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
	"github.com/Iron-Ham/duo/internal/tui"
)

// Output formats accepted by -o.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return errors.NewValidationError("unknown output format").
		WithField("output").
		WithValue(format)
}

// writeStructured writes v as indented JSON or as YAML. YAML keys follow
// the JSON field names and order.
func writeStructured(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == formatJSON {
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles JSON input leaves on the
// node tree so the encoder picks plain YAML styles.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w, or 0 when unknown.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// compileFileFilter matches modified files against any of patterns. '/'
// separates path segments, so "*.go" only matches top-level files and
// "**.go" matches at any depth.
func compileFileFilter(patterns []string) (tui.FileFilter, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid file pattern").
				WithField("files").
				WithValue(p)
		}
		globs = append(globs, g)
	}
	return func(path string) bool {
		for _, g := range globs {
			if g.Match(path) {
				return true
			}
		}
		return false
	}, nil
}

// filterSession returns a copy of sess whose code submissions only list
// files accepted by filter.
func filterSession(sess *session.Session, filter tui.FileFilter) *session.Session {
	out := sess.Clone()
	if filter == nil {
		return out
	}
	for i := range out.Exchanges {
		var kept []string
		for _, f := range out.Exchanges[i].FilesModified {
			if filter(f) {
				kept = append(kept, f)
			}
		}
		out.Exchanges[i].FilesModified = kept
	}
	return out
}

// writeSessionText renders sess for humans: styled on a terminal, plain
// otherwise.
func writeSessionText(w io.Writer, sess *session.Session, filter tui.FileFilter) error {
	if isTerminal(w) {
		_, err := io.WriteString(w, tui.RenderSession(sess, filter, terminalWidth(w)))
		return err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Session:  %s\n", sess.ID)
	fmt.Fprintf(&b, "Task:     %s\n", sess.TaskDescription)
	fmt.Fprintf(&b, "Status:   %s\n", sess.Status)
	fmt.Fprintf(&b, "Round:    %d\n", sess.CurrentRound)
	fmt.Fprintf(&b, "Version:  %d\n", sess.Version)
	for _, ex := range filterSession(sess, filter).Exchanges {
		b.WriteString("\n")
		writeExchangeText(&b, ex)
	}
	_, err := w.Write(b.Bytes())
	return err
}

// writeExchangeText renders one exchange as plain text.
func writeExchangeText(w io.Writer, ex session.Exchange) {
	header := fmt.Sprintf("--- round %d %s", ex.Round, ex.Kind)
	if ex.Verdict != "" {
		header += " " + strings.ToUpper(string(ex.Verdict))
	}
	if ex.Author != "" {
		header += " by " + ex.Author
	}
	fmt.Fprintf(w, "%s (%s)\n", header, ex.Timestamp.Format(time.RFC3339))
	if payload := strings.TrimSpace(ex.Payload); payload != "" {
		fmt.Fprintln(w, payload)
	}
	for _, f := range ex.FilesModified {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

// writeSummaries renders the session list as an aligned table.
func writeSummaries(w io.Writer, list []session.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tROUND\tEXCHANGES\tUPDATED\tTASK")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID, s.Status, s.CurrentRound, s.ExchangeCount,
			s.UpdatedAt.Local().Format(time.DateTime), truncate(s.TaskDescription, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}
