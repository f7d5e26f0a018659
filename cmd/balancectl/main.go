package main

import (
	"os"

	"github.com/JoeShih716/go-balance-ledger/pkg/logger"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		l := logger.New("balancectl", "error")
		l.Error().Err(err).Msg("command execution failed")
		os.Exit(1)
	}
}
