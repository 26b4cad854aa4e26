// Command sqlitecrdt is a thin driver over the sqlitecrdt engine: it
// enables tracking on a table, executes statements against it, and
// exchanges changes with other replicas from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/cellarsync/sqlitecrdt/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
