// Command spxctl drives recognizers and synthesizers from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spxctl:", err)
		os.Exit(1)
	}
}
