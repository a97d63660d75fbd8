// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <file> <token>",
	Short: "Remove a file",
	Long: `Remove a file from the stash.

The index record is deleted first, then the chunks of the file are deleted
from the remote storage, on a best effort basis.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		name, token := args[0], args[1]

		s, err := openStash(ctx, token)
		if err != nil {
			wrapFatalln("open stash", err)
			return
		}
		defer func() { _ = s.Close() }()

		if err = s.service.Remove(ctx, name); err != nil {
			wrapFatalln("remove "+name, err)
			return
		}
		infoLogger.Printf("removed %s", name)
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
