package main

import (
	"os"

	"payengine/cmd/payengine/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
