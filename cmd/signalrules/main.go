package main

import (
	"os"

	"github.com/audumla/signalrules/cmd/signalrules/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
