// Command recall-screen-plugin serves the built-in screen capture backend
// as a go-plugin process. It is a template for third-party capture
// plugins: replace the backend and keep the Serve call.
package main

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/recall/internal/capture"
	"github.com/felixgeelhaar/recall/internal/plugin"
)

func main() {
	b, err := capture.NewScreenBackend()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	plugin.Serve(b)
}
