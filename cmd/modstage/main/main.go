package main

import (
	"os"

	modstage "github.com/modstage/modstage/cmd/modstage"
)

func main() {
	if err := modstage.Execute(); err != nil {
		os.Exit(1)
	}
}
