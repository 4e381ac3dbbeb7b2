// mreplay explores a space of mutated replays of a recorded execution trace.
package main

import (
	"fmt"
	"os"

	"mreplay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
