// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/oneconcern/cloudstash/pkg/config"
	"github.com/oneconcern/cloudstash/pkg/dlogger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cloudstash",
	Short: "cloudstash stores files as deduplicated chunks in a cloud storage account",
	Long: `cloudstash splits files into fixed-size chunks, identified by their content hash.

A local index maps file names to their ordered list of chunks, while chunk contents
are published to a remote blob storage (Dropbox, Google Cloud Storage, S3 or a local folder).

Stored files may be uploaded, downloaded and removed from the command line,
or accessed through a FUSE mount.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cloudstashFlags.root.cpuProf {
			f, err := os.Create("cpu.prof")
			if err != nil {
				logFatalln(err)
				return
			}
			_ = pprof.StartCPUProfile(f)
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cloudstashFlags.root.cpuProf {
			pprof.StopCPUProfile()
		}
	},
}

var (
	settings *config.Config
	logger   = zap.NewNop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	addCPUProfFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addConcurrencyFlag(rootCmd)
	addProtectSharedChunksFlag(rootCmd)
	addIndexFlags(rootCmd)
	addRemoteFlags(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v := viper.GetViper()
	config.Init(v)

	var err error
	settings, err = config.Load(v)
	if err != nil {
		wrapFatalln("loading configuration", err)
		return
	}
	if file := v.ConfigFileUsed(); file != "" {
		infoLogger.Println("Using config file:", file)
	}

	logger, err = dlogger.GetLogger(settings.LogLevel)
	if err != nil {
		wrapFatalln("failed to set log level", err)
		return
	}
}
