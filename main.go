// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/ffutop/vitoconnect/internal/gateway"
	"github.com/ffutop/vitoconnect/internal/logging"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("vitoconnect", pflag.ExitOnError)
	config.BindFlags(flags)
	sets := flags.StringArray("set", nil, "Write a value on startup, as name=value. May be repeated.")
	flags.Parse(os.Args[1:])

	configFile, _ := flags.GetString("config")

	// Load Configuration
	cfg, err := config.LoadConfig(configFile, flags)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	slog.Info("Starting vitoconnect...", "link", cfg.Link.Type, "protocol", cfg.Link.Protocol,
		"datapoints", len(cfg.Datapoints))

	gw, err := gateway.New("vitoconnect", cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to create gateway", "err", err)
		os.Exit(1)
	}

	for _, s := range *sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			slog.Error("Invalid --set, want name=value", "arg", s)
			os.Exit(1)
		}
		if err := gw.Set(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			slog.Error("Failed to set datapoint", "datapoint", name, "err", err)
			os.Exit(1)
		}
	}

	// Wait for Signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		slog.Error("Gateway stopped with error", "name", gw.Name, "err", err)
	}
	slog.Info("Goodbye.")
}
