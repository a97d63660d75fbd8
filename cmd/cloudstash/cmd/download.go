// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <file> <newname> <token>",
	Short: "Download a file",
	Long: `Download a file from the stash and save it locally under a new name.

Chunks are fetched from the remote storage in order, and written to the
destination truncated to the size of the stored file.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		name, dest, token := args[0], args[1], args[2]

		s, err := openStash(ctx, token)
		if err != nil {
			wrapFatalln("open stash", err)
			return
		}
		defer func() { _ = s.Close() }()

		if _, err = s.service.Stat(ctx, name); err != nil {
			wrapFatalln("download "+name, err)
			return
		}

		out, err := appFs.Create(dest)
		if err != nil {
			wrapFatalln("create "+dest, err)
			return
		}

		err = s.service.Download(ctx, name, out)
		if errClose := out.Close(); err == nil {
			err = errClose
		}
		if err != nil {
			_ = appFs.Remove(dest)
			wrapFatalln("download "+name, err)
			return
		}
		infoLogger.Printf("downloaded %s to %s", name, dest)
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}
