package main

import (
	"os"

	"civitdl/internal/cli"
)

func main() { os.Exit(cli.Main()) }
