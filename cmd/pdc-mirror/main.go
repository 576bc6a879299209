// Command pdc-mirror incrementally mirrors provider-data catalog datasets.
package main

import (
	"fmt"
	"os"

	"github.com/openpdc/pdc-mirror/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
