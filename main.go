package main

import (
	"os"

	"github.com/asterixix/tecza/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
