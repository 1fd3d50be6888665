package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"camliup/internal/blobref"
)

func newHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "hash <file>...",
		Short:       "Print the content name of local files",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			for _, path := range args {
				ref, size, err := blobref.HashFile(path)
				if err != nil {
					return fmt.Errorf("hash %s: %w", path, err)
				}
				fmt.Fprintf(stdout, "%s  %s  %s\n", ref, formatBytes(size), path)
			}
			return nil
		},
	}
}
