// Command codevault runs the CodeVault HTTP server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/codevault/codevault/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "codevault:", err)
		os.Exit(1)
	}
}
