package main

import (
	"os"

	"github.com/mtkallio/spotcharge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
