// Command formsage runs the tax document assistant backend.
package main

import (
	"os"

	"github.com/formsage/formsage/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
