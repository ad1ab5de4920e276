package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/elijahmorgan/cowrap/internal/logging"
	"github.com/elijahmorgan/cowrap/internal/lsp"
)

func main() {
	verbose := len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--verbose")

	// stdout carries the protocol; logs go to stderr.
	logger, err := logging.NewCLI(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cowrap_lsp: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := lsp.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("cowrap_lsp failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
