package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/blindbox/internal/domain/model"
)

// ErrRevealsFailed is returned when at least one avatar in the range failed.
var ErrRevealsFailed = errors.New("some reveals failed")

type revealOptions struct {
	from, to  uint64
	forceOpen bool
}

func newRevealCmd(root *rootOptions) *cobra.Command {
	opts := &revealOptions{}

	cmd := &cobra.Command{
		Use:   "reveal",
		Short: "Reveal a range of avatars",
		Long: `Reveal every avatar in [--from, --to] through the batch queue and print
one line per avatar. Ranges wider than batch_queue_size are split into
consecutive batches.

Examples:
  # Reveal avatars 1 through 500
  revealctl reveal --from 1 --to 500 -c blindbox.yaml

  # Reveal even if reveal_enabled is false in the config
  revealctl reveal --from 1 --to 10 --force-open`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReveal(cmd.Context(), cmd.OutOrStdout(), root, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.from, "from", 0, "First avatar id (inclusive)")
	cmd.Flags().Uint64Var(&opts.to, "to", 0, "Last avatar id (inclusive)")
	cmd.Flags().BoolVar(&opts.forceOpen, "force-open", false, "Open the reveal stage for this run")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runReveal(ctx context.Context, out io.Writer, root *rootOptions, opts *revealOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.to < opts.from {
		return fmt.Errorf("--to (%d) is below --from (%d)", opts.to, opts.from)
	}

	rt, cfg, err := root.runtime(ctx, out)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	if opts.forceOpen {
		rt.Chain.SetRevealEnabled(true)
	}

	batch := uint64(cfg.BatchQueueSize)
	var ok, failed int
	for first := opts.from; ; first += batch {
		last := first + batch - 1
		if last < first || last > opts.to {
			last = opts.to
		}
		outcomes, err := rt.Service.RevealRange(ctx, first, last)
		for _, o := range outcomes {
			printOutcome(out, o)
			if o.Err != nil {
				failed++
			} else {
				ok++
			}
		}
		if err != nil {
			return err
		}
		if last == opts.to {
			break
		}
	}

	cyan.Fprintf(out, "\n%d revealed, %d failed\n", ok, failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRevealsFailed, failed, ok+failed)
	}
	return nil
}

func printOutcome(out io.Writer, o model.RevealOutcome) {
	if o.Err != nil {
		red.Fprintf(out, "✗ avatar %d", o.AvatarID)
		fmt.Fprintf(out, ": %v\n", o.Err)
		return
	}
	green.Fprintf(out, "✓ avatar %d", o.AvatarID)
	fmt.Fprintf(out, " -> slot %d\n", o.Slot)
}
