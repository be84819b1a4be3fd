package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

func registerWaitCmd(root *cobra.Command) {
	var (
		forKind string
		round   int
		timeout time.Duration
		format  string
	)
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Block until the counterpart's exchange arrives",
		Long: `Wait for a review or a code submission to be persisted, then print it.

Without --round, waiting for a review targets the latest code submission and
waiting for code targets the session's current round. The command exits
non-zero on timeout, or if the session closes first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseWaitKind(forKind)
			if err != nil {
				return err
			}
			if err := validateFormat(format); err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				id := args[0]
				target := round
				if target < 0 {
					sess, err := a.store.Load(cmd.Context(), id)
					if err != nil {
						return err
					}
					target = defaultWaitRound(sess, kind)
				}

				ex, err := a.bridge.WaitForExchange(cmd.Context(), id, target, kind, timeout)
				if err != nil {
					return err
				}
				if format == formatText {
					writeExchangeText(cmd.OutOrStdout(), *ex)
					return nil
				}
				return writeStructured(cmd.OutOrStdout(), format, ex)
			})
		},
	}
	cmd.Flags().StringVar(&forKind, "for", "review", "what to wait for: review or code")
	cmd.Flags().IntVar(&round, "round", -1, "round to wait on (default: see above)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "give up after this long (default coordination.default_timeout)")
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json, yaml")
	root.AddCommand(cmd)
}

func parseWaitKind(s string) (session.Kind, error) {
	switch s {
	case "review":
		return session.KindReview, nil
	case "code", string(session.KindCodeSubmission):
		return session.KindCodeSubmission, nil
	}
	return "", errors.NewValidationError("--for must be review or code").
		WithField("for").
		WithValue(s)
}

// defaultWaitRound picks the round a wait targets when none is given.
func defaultWaitRound(sess *session.Session, kind session.Kind) int {
	if kind == session.KindReview {
		for i := len(sess.Exchanges) - 1; i >= 0; i-- {
			if sess.Exchanges[i].Kind == session.KindCodeSubmission {
				return sess.Exchanges[i].Round
			}
		}
	}
	return sess.CurrentRound
}
