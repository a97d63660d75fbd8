// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// appFs is the local file system read and written by commands
var appFs = afero.NewOsFs()

var uploadCmd = &cobra.Command{
	Use:   "upload <file> <newname> <token>",
	Short: "Upload a file",
	Long: `Upload a local file to the stash, under a new name.

The file is split into chunks: new chunks are published to the remote storage,
and the local index records the chunks making up the file.
Uploading to an existing name replaces the previous content of the index record.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		file, name, token := args[0], args[1], args[2]

		data, err := afero.ReadFile(appFs, file)
		if err != nil {
			wrapFatalln("read file "+file, err)
			return
		}

		s, err := openStash(ctx, token)
		if err != nil {
			wrapFatalln("open stash", err)
			return
		}
		defer func() { _ = s.Close() }()

		if err = s.service.Upload(ctx, name, data); err != nil {
			wrapFatalln("upload "+name, err)
			return
		}
		infoLogger.Printf("uploaded %s as %s (%s)", file, name, units.HumanSize(float64(len(data))))
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
