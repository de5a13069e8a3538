// Package main is the entry point for the reconcile CLI.
package main

import (
	"os"

	"github.com/blueharbor-marine/reconcile/cmd/reconcile/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
