// Command imgship copies a container image to a remote engine over ssh,
// sending only the layers the remote engine does not already have.
package main

import (
	"os"

	"github.com/meigma/imgship/cmd/imgship/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
