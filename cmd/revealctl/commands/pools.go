package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/blindbox/internal/domain/types"
)

func newPoolsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "Show per-pool occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, _, err := root.runtime(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			status, err := rt.Service.PoolStatus(ctx)
			if err != nil {
				return err
			}
			printPools(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func printPools(out io.Writer, status []types.PoolStatus) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RARITY\tSTART\tSIZE\tREVEALED\tSTATE")
	for _, p := range status {
		state := green.Sprint("open")
		if p.Full {
			state = red.Sprint("full")
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", p.Rarity, p.Start, p.Size, p.Revealed, state)
	}
	_ = tw.Flush()
}
