package main

import (
	"context"
	"fmt"
	"os"

	"github.com/illmade-knight/go-apicache/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return cli.NewRootCmd(version).ExecuteContext(ctx)
}
