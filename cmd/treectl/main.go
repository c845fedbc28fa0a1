// Command treectl inspects and edits a node tree directly on its storage
// backend, with the same invariant checks the HTTP server applies.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	a := &app{}
	err := newRootCmd(a).Execute()
	if closeErr := a.close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Error: close backend: %v\n", closeErr)
		os.Exit(1)
	}
	if err != nil {
		os.Exit(1)
	}
}
