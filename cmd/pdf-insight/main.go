// Command pdf-insight serves a web page for asking a multimodal model
// questions about an uploaded PDF, and offers the same flow from the terminal.
package main

import (
	"fmt"
	"os"
)

var (
	version = "0.1.0"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
