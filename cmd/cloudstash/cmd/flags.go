// Copyright © 2018 One Concern

package cmd

import (
	"github.com/oneconcern/cloudstash/pkg/config"
	"github.com/oneconcern/cloudstash/pkg/dlogger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type flagsT struct {
	root struct {
		cpuProf bool
	}
	mount struct {
		Daemonize  bool
		ReadOnly   bool
		AllowOther bool
	}
	config struct {
		Output string
		Force  bool
	}
	list struct {
		Prefix string
		Human  bool
	}
}

var cloudstashFlags = flagsT{}

// bindFlag makes a persistent flag the highest priority source of a config key
func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logFatalln(err)
	}
}

func addCPUProfFlag(cmd *cobra.Command) string {
	cpuprof := "cpuprof"
	cmd.PersistentFlags().BoolVar(&cloudstashFlags.root.cpuProf, cpuprof, false, "Toggles cpu profiling, written to cpu.prof")
	return cpuprof
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := config.KeyLogLevel
	cmd.PersistentFlags().String(logLevel, dlogger.LogLevelInfo, "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	bindFlag(config.KeyLogLevel, cmd.PersistentFlags().Lookup(logLevel))
	return logLevel
}

func addConcurrencyFlag(cmd *cobra.Command) string {
	concurrency := config.KeyConcurrency
	cmd.PersistentFlags().Int(concurrency, 1, "The number of chunks transferred in parallel")
	bindFlag(config.KeyConcurrency, cmd.PersistentFlags().Lookup(concurrency))
	return concurrency
}

func addProtectSharedChunksFlag(cmd *cobra.Command) string {
	protect := config.KeyProtectSharedChunks
	cmd.PersistentFlags().Bool(protect, false, "Keep chunks still used by other files when removing or replacing a file")
	bindFlag(config.KeyProtectSharedChunks, cmd.PersistentFlags().Lookup(protect))
	return protect
}

func addIndexFlags(cmd *cobra.Command) {
	for _, flag := range []struct {
		name, key, usage string
	}{
		{name: "index", key: config.KeyIndexBackend, usage: "The local index backend: memory, sqlite or badger"},
		{name: "index-path", key: config.KeyIndexPath, usage: "The location of the local index (sqlite file or badger directory)"},
	} {
		cmd.PersistentFlags().String(flag.name, "", flag.usage)
		bindFlag(flag.key, cmd.PersistentFlags().Lookup(flag.name))
	}
}

func addRemoteFlags(cmd *cobra.Command) {
	for _, flag := range []struct {
		name, key, usage string
	}{
		{name: "remote", key: config.KeyRemoteBackend, usage: "The remote chunk storage: dropbox, gcs, s3 or localfs"},
		{name: "bucket", key: config.KeyRemoteBucket, usage: "The bucket holding chunks, for gcs and s3"},
		{name: "prefix", key: config.KeyRemotePrefix, usage: "A prefix prepended to every chunk key"},
		{name: "remote-path", key: config.KeyRemotePath, usage: "The folder holding chunks, for localfs"},
		{name: "region", key: config.KeyRemoteRegion, usage: "The AWS region, for s3"},
		{name: "endpoint", key: config.KeyRemoteEndpoint, usage: "A custom API endpoint, for gcs and s3"},
		{name: "credential", key: config.KeyRemoteCredentials, usage: "The path to a GCS service account credential file"},
	} {
		cmd.PersistentFlags().String(flag.name, "", flag.usage)
		bindFlag(flag.key, cmd.PersistentFlags().Lookup(flag.name))
	}

	cmd.PersistentFlags().Bool("skip-existing", false, "Skip publishing chunks already present in the remote storage")
	bindFlag(config.KeyRemoteSkipExisting, cmd.PersistentFlags().Lookup("skip-existing"))
	cmd.PersistentFlags().Bool("verify-hash", false, "Verify the hash of downloaded chunks")
	bindFlag(config.KeyRemoteVerifyHash, cmd.PersistentFlags().Lookup("verify-hash"))
}

func addDaemonizeFlag(cmd *cobra.Command) string {
	daemonize := "daemonize"
	if cmd != nil {
		cmd.Flags().BoolVar(&cloudstashFlags.mount.Daemonize, daemonize, false, "Whether to run the command as a daemonized process")
	}
	return daemonize
}

func addReadOnlyFlag(cmd *cobra.Command) string {
	readOnly := "read-only"
	cmd.Flags().BoolVar(&cloudstashFlags.mount.ReadOnly, readOnly, false, "Mount the stash read-only")
	return readOnly
}

func addAllowOtherFlag(cmd *cobra.Command) string {
	allowOther := "allow-other"
	cmd.Flags().BoolVar(&cloudstashFlags.mount.AllowOther, allowOther, false, "Let other users access the mount")
	return allowOther
}

func addOutputFlag(cmd *cobra.Command) string {
	output := "output"
	cmd.Flags().StringVar(&cloudstashFlags.config.Output, output, "", "The path of the generated config file. Defaults to $HOME/.cloudstash/cloudstash.yaml")
	return output
}

func addForceFlag(cmd *cobra.Command) string {
	force := "force"
	cmd.Flags().BoolVar(&cloudstashFlags.config.Force, force, false, "Overwrite an existing config file")
	return force
}

func addListPrefixFlag(cmd *cobra.Command) string {
	prefix := "name-prefix"
	cmd.Flags().StringVar(&cloudstashFlags.list.Prefix, prefix, "", "List only files whose name starts with this prefix")
	return prefix
}

func addHumanFlag(cmd *cobra.Command) string {
	human := "human"
	cmd.Flags().BoolVarP(&cloudstashFlags.list.Human, human, "H", false, "Print sizes in human readable format")
	return human
}
