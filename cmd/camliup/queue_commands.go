package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"camliup/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the upload queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pending files in upload order",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList()
				if err != nil {
					return err
				}
				if len(resp.Files) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
					return nil
				}
				fmt.Fprint(stdout, renderQueueTable(resp.Files, time.Now()))
				return nil
			})
		},
	}
}

func renderQueueTable(files []ipc.QueueFile, now time.Time) string {
	rows := make([][]string, 0, len(files))
	for i, f := range files {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			f.BlobRef,
			formatBytes(f.Size),
			formatQueuedAt(f.QueuedAt, now),
			f.Handle,
		})
	}
	return renderTable([]column{
		{Title: "#", Numeric: true},
		{Title: "Blob"},
		{Title: "Size", Numeric: true},
		{Title: "Queued"},
		{Title: "Source"},
	}, rows)
}

