package main

import (
	"os"

	"github.com/mkarolys/handbox/cmd/handbox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
