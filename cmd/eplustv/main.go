// Package main is the entry point for the eplustv tuner.
package main

import (
	"os"

	"github.com/leduong/EPlusTV/cmd/eplustv/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
