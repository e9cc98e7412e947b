package main

import (
	"context"
	"os"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
