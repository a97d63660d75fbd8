// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/cloudstash/cmd/cloudstash/cmd"
)

func main() {
	cmd.Execute()
}
