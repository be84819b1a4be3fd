package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/duo/internal/bridge"
	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

// payloadFlags are shared by submit and review.
type payloadFlags struct {
	text string
	file string
}

func (p *payloadFlags) register(cmd *cobra.Command, what string) {
	cmd.Flags().StringVarP(&p.text, "payload", "p", "", what)
	cmd.Flags().StringVarP(&p.file, "payload-file", "f", "", "read the payload from a file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")
}

// read returns the payload from the flag, the file or stdin.
func (p *payloadFlags) read(stdin io.Reader) (string, error) {
	switch p.file {
	case "":
		return p.text, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", errors.Wrap(err, "read payload from stdin")
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(p.file)
		if err != nil {
			return "", errors.Wrap(err, "read payload file")
		}
		return string(data), nil
	}
}

func registerExchangeCmds(root *cobra.Command) {
	root.AddCommand(newSubmitCmd(), newReviewCmd())
}

func newSubmitCmd() *cobra.Command {
	var (
		payload payloadFlags
		files   []string
		author  string
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit code for review",
		Long: `Append a code submission to the session's current round.

The payload is opaque to duo: a diff, source text or a description of the
change. List the files touched with --file; with --wait the command blocks
until the reviewer responds and prints the review.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := payload.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				saved, err := a.bridge.SubmitCode(cmd.Context(), args[0], bridge.CodeSubmission{
					Payload: text,
					Files:   files,
					Author:  author,
				})
				if err != nil {
					return err
				}
				ex, _ := saved.LastExchange()
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted round %d of %s (version %d)\n", ex.Round, saved.ID, saved.Version)
				if !wait {
					return nil
				}

				review, err := a.bridge.WaitForReview(cmd.Context(), saved.ID, ex.Round, timeout)
				if err != nil {
					return err
				}
				writeExchangeText(cmd.OutOrStdout(), *review)
				return nil
			})
		},
	}
	payload.register(cmd, "code submission payload")
	cmd.Flags().StringArrayVar(&files, "file", nil, "modified file (repeatable)")
	cmd.Flags().StringVar(&author, "author", "", "agent or person submitting")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the review before exiting")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long --wait blocks (default coordination.default_timeout)")
	return cmd
}

func newReviewCmd() *cobra.Command {
	var (
		payload payloadFlags
		verdict string
		author  string
	)
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Review the pending code submission",
		Long: fmt.Sprintf(`Append a review with a verdict to the session's current round.

Verdicts: %s.
approved and rejected close the session; the others start the next round.`, verdictList()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := session.ParseVerdict(verdict)
			if err != nil {
				return err
			}
			text, err := payload.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				saved, err := a.bridge.SubmitReview(cmd.Context(), args[0], bridge.Review{
					Payload: text,
					Verdict: v,
					Author:  author,
				})
				if err != nil {
					return err
				}
				ex, _ := saved.LastExchange()
				fmt.Fprintf(cmd.OutOrStdout(), "Reviewed round %d of %s: %s (status %s)\n", ex.Round, saved.ID, v, saved.Status)
				return nil
			})
		},
	}
	payload.register(cmd, "review text")
	cmd.Flags().StringVar(&verdict, "verdict", "", "review verdict (required)")
	cmd.Flags().StringVar(&author, "author", "", "agent or person reviewing")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func verdictList() string {
	names := make([]string, 0, len(session.Verdicts()))
	for _, v := range session.Verdicts() {
		names = append(names, string(v))
	}
	return strings.Join(names, ", ")
}
