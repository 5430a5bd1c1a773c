// Package main is the entry point for the sqlgate CLI.
// It answers natural-language questions about a database through a SQL safety gate.
package main

import (
	"sqlgate/cli/cmd"
)

func main() {
	cmd.Execute()
}
