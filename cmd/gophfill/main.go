// gophfill is the operator CLI of the autofill engine: interactive fills, remembered
// matches, label resolution and mTLS provisioning.
package main

import (
	"os"

	"github.com/atinyakov/GophFill/cmd/gophfill/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
