package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"camliup/internal/api"
	"camliup/internal/ipc"
	"camliup/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, server, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newStatusPrinter(cmd.OutOrStdout())

			var status *ipc.StatusResponse
			err := ctx.withClient(func(client *ipc.Client) error {
				var err error
				status, err = client.Status()
				return err
			})
			if err != nil && !errors.Is(err, errDaemonNotRunning) {
				return err
			}

			out.section("Daemon")
			if status == nil {
				out.line("Daemon", statusWarn, "not running")
				out.blank()
				out.checks(api.FromCheckResults(preflight.RunAll(cmd.Context(), ctx.configValue())))
				return nil
			}
			out.line("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID))
			if status.APIAddress != "" {
				out.line("HTTP API", statusInfo, status.APIAddress)
			}
			out.line("Journal", statusInfo, status.JournalPath)
			out.blank()
			out.checks(status.Checks)
			out.blank()

			out.section("Upload")
			up := status.Upload
			state := statusInfo
			if up.Uploading {
				state = statusOK
			}
			out.line("State", state, up.State)
			out.line("Server", statusInfo, up.Server)
			out.line("Queued", statusInfo, fmt.Sprintf("%d files, %s", up.QueueSize, formatBytes(up.QueueBytes)))
			out.line("Sent", statusInfo, formatBytes(up.BytesSent))
			if up.LastError != "" {
				out.line("Last error", statusError, up.LastError)
			}
			return nil
		},
	}
}
