// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	daemonizer "github.com/jacobsa/daemonize"
	"github.com/oneconcern/cloudstash/pkg/fuse"
	"github.com/oneconcern/cloudstash/pkg/shim"
	"github.com/spf13/cobra"
)

func undaemonizeArgs(args []string) []string {
	foregroundArgs := make([]string, 0, len(args))
	for _, arg := range args {
		if arg != "--"+addDaemonizeFlag(nil) {
			foregroundArgs = append(foregroundArgs, arg)
		}
	}
	return foregroundArgs
}

// daemonEnv is the environment passed to the daemonized process
func daemonEnv(environ []string) []string {
	// PATH lets the daemon find fusermount on Linux
	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
	}
	for _, kv := range environ {
		if strings.HasPrefix(kv, "CLOUDSTASH_") || strings.HasPrefix(kv, "GOOGLE_APPLICATION_CREDENTIALS=") || strings.HasPrefix(kv, "AWS_") {
			env = append(env, kv)
		}
	}
	return env
}

// runDaemonized runs the selfsame binary as a background process, without the daemonize flag.
//
// The daemon reports its successful start with daemonizer.SignalOutcome.
func runDaemonized() {
	path, err := os.Executable()
	if err != nil {
		logFatalln(fmt.Errorf("os.Executable: %v", err))
		return
	}

	err = daemonizer.Run(path, undaemonizeArgs(os.Args[1:]), daemonEnv(os.Environ()), os.Stdout)
	if err != nil {
		logFatalln(fmt.Errorf("daemonize.Run: %v", err))
	}
}

// onDaemonError is used instead of logFatalln between runDaemonized and SignalOutcome
func onDaemonError(err error) {
	if errSig := daemonizer.SignalOutcome(err); errSig != nil {
		logFatalln(fmt.Errorf("error SignalOutcome: %v, cause: %v", errSig, err))
		return
	}
	logFatalln(err)
}

var mountCmd = &cobra.Command{
	Use:   "mount <path> <token>",
	Short: "Mount the stash",
	Long: `Mount the stash as a flat file system.

Every stored file appears at the root of the mount point. Files are read and written as a whole:
writes are buffered and stored when the file is closed.

The mount is removed on SIGINT.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if cloudstashFlags.mount.Daemonize {
			runDaemonized()
			return
		}
		mountPath, token := args[0], args[1]

		s, err := openStash(ctx, token)
		if err != nil {
			onDaemonError(err)
			return
		}
		defer func() { _ = s.Close() }()

		fs := fuse.New(shim.New(s.service, shim.Logger(logger)), fuse.Logger(logger))
		if err = fs.Mount(mountPath,
			fuse.ReadOnly(cloudstashFlags.mount.ReadOnly),
			fuse.AllowOther(cloudstashFlags.mount.AllowOther),
		); err != nil {
			onDaemonError(err)
			return
		}

		registerSIGINTHandlerMount(mountPath)
		if err = daemonizer.SignalOutcome(nil); err != nil {
			logFatalln(err)
			return
		}
		if err = fs.JoinMount(ctx); err != nil {
			logFatalln(err)
		}
	},
}

func init() {
	addDaemonizeFlag(mountCmd)
	addReadOnlyFlag(mountCmd)
	addAllowOtherFlag(mountCmd)
	rootCmd.AddCommand(mountCmd)
}
