package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"camliup/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LogTail(ipc.LogTailRequest{Limit: limit})
				if err != nil {
					return err
				}
				for _, line := range resp.Lines {
					fmt.Fprintln(stdout, line)
				}
				if !follow {
					return nil
				}
				next := resp.Next
				for {
					if err := cmd.Context().Err(); err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					page, err := client.LogTail(ipc.LogTailRequest{Since: next, Limit: limit, Follow: true, WaitMillis: 1000})
					if err != nil {
						return err
					}
					for _, line := range page.Lines {
						fmt.Fprintln(stdout, line)
					}
					next = page.Next
				}
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	return cmd
}
