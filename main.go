package main

import (
	"os"

	"mailflow-backend/cmd/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
