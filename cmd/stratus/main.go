package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/stratus-io/stratus/internal/cli"
	"github.com/stratus-io/stratus/internal/engine"

	_ "github.com/stratus-io/stratus/providers/local"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		if engine.IsConfigurationError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
