package main

import (
	"fmt"
	"os"

	"github.com/capydeploy/agent/internal/cmd"
)

var version = "0.1.0"

func main() {
	root := cmd.NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
