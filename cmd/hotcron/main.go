package main

import (
	"os"

	"hotcron/cmd/hotcron/commands"
)

func main() {
	if err := commands.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
