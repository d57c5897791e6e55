package main

import (
	"os"

	"github.com/projectify/live/cli"
	"github.com/projectify/live/cmd"
)

func main() {
	os.Exit(cli.Execute(cmd.NewRootCmd()))
}
