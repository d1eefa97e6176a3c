// Command sinhome runs the conversation window and repetition recovery engine.
package main

import (
	"fmt"
	"os"

	"sinhome/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
