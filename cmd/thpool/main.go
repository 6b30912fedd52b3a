// Package main is the entry point for thpool.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
