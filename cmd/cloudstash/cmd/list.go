package cmd

import (
	"context"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [<token>]",
	Short: "List files",
	Long: `List the files recorded in the local index, with their size, sorted by name.

Listing only reads the local index: the token is accepted for symmetry with other commands, and ignored.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if settings == nil {
			wrapFatalln("configuration not loaded", nil)
			return
		}

		idx, err := openIndex(settings, logger)
		if err != nil {
			wrapFatalln("open index", err)
			return
		}
		defer func() { _ = idx.Close() }()

		entries, err := idx.List(ctx)
		if err != nil {
			wrapFatalln("list", err)
			return
		}

		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name, cloudstashFlags.list.Prefix) {
				continue
			}
			if cloudstashFlags.list.Human {
				logStdOut("%s\t%s\n", entry.Name, units.HumanSize(float64(entry.Size)))
				continue
			}
			logStdOut("%s\t%d\n", entry.Name, entry.Size)
		}
	},
}

func init() {
	addListPrefixFlag(listCmd)
	addHumanFlag(listCmd)
	rootCmd.AddCommand(listCmd)
}
