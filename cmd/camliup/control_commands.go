package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"camliup/internal/config"
	"camliup/internal/ipc"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Queue files for upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handles, err := resolveHandles(args)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(handles)
				if err != nil {
					return err
				}
				failed := 0
				for _, result := range resp.Results {
					switch {
					case result.Error != "":
						failed++
						fmt.Fprintf(stdout, "Failed %s: %s\n", result.Handle, result.Error)
					case result.Queued:
						fmt.Fprintf(stdout, "Queued %s\n", result.Handle)
					default:
						fmt.Fprintf(stdout, "Already queued %s\n", result.Handle)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files could not be queued", failed, len(resp.Results))
				}
				return nil
			})
		},
	}
}

// resolveHandles expands ~ and makes paths absolute so the daemon resolves
// them independent of the CLI working directory.
func resolveHandles(args []string) ([]string, error) {
	handles := make([]string, 0, len(args))
	for _, arg := range args {
		expanded, err := config.ExpandPath(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", arg, err)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", arg, err)
		}
		handles = append(handles, abs)
	}
	return handles, nil
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Stop uploading after the current chunk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return err
				}
				if resp.Paused {
					fmt.Fprintln(cmd.OutOrStdout(), "Pause requested")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Not uploading")
				}
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Start uploading the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return err
				}
				if !resp.Resumed {
					fmt.Fprintf(cmd.OutOrStdout(), "Not started: %s\n", resp.Message)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Upload started")
				return nil
			})
		},
	}
}
