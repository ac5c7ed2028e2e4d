// Command vidflow runs a capture, beautify and record pipeline on a
// synthetic or GStreamer camera and reports what it processed.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vidflow:", err)
		os.Exit(1)
	}
}
