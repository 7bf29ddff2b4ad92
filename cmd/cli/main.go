package main

import (
	"os"

	"github.com/ingresounam/ingreso/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
