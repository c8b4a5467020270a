// Command portal runs the medical portal's machine layer against an
// in-memory backend: a scripted demo session and diagram generation.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
