// Package main is the entry point for the clustersql CLI.
package main

import (
	"clustersql/cli/cmd"
)

func main() {
	cmd.Execute()
}
