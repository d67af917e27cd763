// Command restq serves CRUD calls over CUE-declared models from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/restq/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "restq: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
