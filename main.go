// Package main is the entry point for the csicollect agent.
package main

import (
	"fmt"
	"os"

	"github.com/espsense/csicollect/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
