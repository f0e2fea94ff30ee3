// Command minirx compiles store specs, runs scenarios against them and
// serves a store over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/minirx/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
