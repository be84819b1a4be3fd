package agent

import (
	"regexp"
	"strings"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

// Markdown emphasis and backticks around markers are tolerated.
var (
	verdictLine = regexp.MustCompile("(?i)^[\\s*_`]*VERDICT[\\s*_`]*:[\\s*_`]*(.*?)[\\s*_`.]*$")
	fileLine    = regexp.MustCompile("(?i)^[\\s*_`-]*FILE[\\s*_`]*:[\\s*`]*(.*?)[\\s*`]*$")
)

// ParseVerdict returns the verdict from the last VERDICT line in text.
func ParseVerdict(text string) (session.Verdict, error) {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		m := verdictLine.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		return session.ParseVerdict(m[1])
	}
	return "", errors.NewValidationError("agent output has no " + VerdictMarker + " line").WithField("verdict")
}

// ParseFiles returns the paths named on FILE lines in text, in order of
// appearance. Normalization happens when the submission is appended.
func ParseFiles(text string) []string {
	var files []string
	for _, line := range strings.Split(text, "\n") {
		m := fileLine.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			continue
		}
		files = append(files, m[1])
	}
	return files
}
