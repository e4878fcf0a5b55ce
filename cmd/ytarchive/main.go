package main

import (
	"os"

	"ytarchive/cli"
)

func main() {
	if err := cli.Run(); err != nil {
		os.Exit(1)
	}
}
