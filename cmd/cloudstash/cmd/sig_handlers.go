// Copyright © 2018 One Concern

package cmd

import (
	"os"
	"os/signal"

	"github.com/jacobsa/fuse"
)

func registerSIGINTHandlerMount(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	// unmount when the signal is received
	go func() {
		for {
			<-signalChan
			infoLogger.Println("Received SIGINT, attempting to unmount...")

			err := fuse.Unmount(mountPoint)
			if err != nil {
				infoLogger.Printf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				infoLogger.Println("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}
