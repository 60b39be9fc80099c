package main

import (
	"fmt"
	"os"

	"github.com/bulatminnakhmetov/media-relay/internal/config"
	"github.com/bulatminnakhmetov/media-relay/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg, relay.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
