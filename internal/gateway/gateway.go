// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/ffutop/vitoconnect/internal/datapoint"
	localdevice "github.com/ffutop/vitoconnect/internal/local-device"
	"github.com/ffutop/vitoconnect/internal/scheduler"
	"github.com/ffutop/vitoconnect/internal/vitoconnect"
	"github.com/ffutop/vitoconnect/transport"
	"github.com/ffutop/vitoconnect/transport/local"
	"github.com/ffutop/vitoconnect/transport/optolink"
)

// failureWarnThreshold is the number of consecutive failed requests of one
// data point after which a warning is logged.
const failureWarnThreshold = 3

// Gateway runs one controller connection: it owns the link, the scheduler,
// the controller and the configured data points.
type Gateway struct {
	Name string

	cfg    config.ControllerConfig
	link   transport.Link
	sched  *scheduler.Scheduler
	ctrl   *vitoconnect.Controller
	points map[string]*datapoint.Datapoint
	logger *slog.Logger

	// failures is only touched from the tick loop.
	failures map[string]int
}

// NewLink creates the link selected by cfg.Type.
func NewLink(cfg config.LinkConfig, logger *slog.Logger) (transport.Link, error) {
	var opener optolink.Opener
	switch cfg.Type {
	case "serial":
		opener = optolink.NewSerialOpener(cfg.Serial)
	case "tcp":
		opener = optolink.NewTCPOpener(cfg.Tcp)
	case "local":
		return local.New(localdevice.Open(cfg.Local.Persistence), cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown link type %q", cfg.Type)
	}

	link, err := optolink.New(opener, cfg, logger)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// SchedulerOptions converts cfg into scheduler options. Zero durations and
// capacity keep the scheduler defaults. A zero read dedup threshold
// deduplicates every read; a negative one keeps the default.
func SchedulerOptions(cfg config.SchedulerConfig, logger *slog.Logger) []scheduler.Option {
	opts := []scheduler.Option{scheduler.WithLogger(logger)}
	if cfg.Capacity > 0 {
		opts = append(opts, scheduler.WithCapacity(cfg.Capacity))
	}
	if cfg.InterRequestDelay > 0 {
		opts = append(opts, scheduler.WithInterRequestDelay(cfg.InterRequestDelay))
	}
	if cfg.RetryThrottle > 0 {
		opts = append(opts, scheduler.WithRetryThrottle(cfg.RetryThrottle))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, scheduler.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.ReadDedupThreshold >= 0 {
		opts = append(opts, scheduler.WithReadDedupThreshold(cfg.ReadDedupThreshold))
	}
	return opts
}

// New builds a Gateway from cfg.
func New(name string, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("gateway", name)

	link, err := NewLink(cfg.Link, logger)
	if err != nil {
		return nil, err
	}
	return newGateway(name, cfg, link, logger)
}

func newGateway(name string, cfg *config.Config, link transport.Link, logger *slog.Logger) (*Gateway, error) {
	sched, err := scheduler.New(SchedulerOptions(cfg.Scheduler, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	g := &Gateway{
		Name:     name,
		cfg:      cfg.Controller,
		link:     link,
		sched:    sched,
		ctrl:     vitoconnect.New(sched, link, cfg.Controller, logger),
		points:   make(map[string]*datapoint.Datapoint, len(cfg.Datapoints)),
		logger:   logger,
		failures: make(map[string]int),
	}
	g.ctrl.OnError(g.handleError)

	for _, dpCfg := range cfg.Datapoints {
		dp, err := datapoint.FromConfig(dpCfg)
		if err != nil {
			return nil, err
		}
		if err := g.ctrl.Register(dp); err != nil {
			return nil, err
		}
		dp.OnValue(g.handleValue)
		g.points[dp.Name()] = dp
	}
	return g, nil
}

// Controller returns the controller driven by the gateway.
func (g *Gateway) Controller() *vitoconnect.Controller { return g.ctrl }

// Set parses value and schedules it to be written to the named data point
// on the next update.
func (g *Gateway) Set(name, value string) error {
	dp, ok := g.points[name]
	if !ok {
		return fmt.Errorf("unknown datapoint %q", name)
	}
	return dp.SetString(value)
}

// Start connects the link and runs the tick loop until ctx is done. The
// link is closed on return.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.link.Connect(ctx); err != nil {
		// The link retries on its own from Loop.
		g.logger.Error("Failed to connect link", "err", err)
	}

	tick := g.cfg.TickInterval
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	update := g.cfg.UpdateInterval
	if update <= 0 {
		update = time.Minute
	}

	var wg sync.WaitGroup
	if g.cfg.ReportInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.report(ctx, g.cfg.ReportInterval)
		}()
	}

	tickTicker := time.NewTicker(tick)
	defer tickTicker.Stop()
	updateTicker := time.NewTicker(update)
	defer updateTicker.Stop()

	g.logger.Info("Gateway started", "datapoints", len(g.points), "tick", tick, "update", update)
	g.ctrl.Update()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tickTicker.C:
			g.ctrl.Loop()
		case <-updateTicker.C:
			g.ctrl.Update()
		}
	}

	err := g.link.Close()
	wg.Wait()
	g.logger.Info("Gateway stopped")
	return err
}

func (g *Gateway) report(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, r := range g.ctrl.Readings() {
				g.logger.Info("Reading", "datapoint", r.Name, "address", fmt.Sprintf("0x%04X", r.Address),
					"value", r.Value, "age", time.Since(r.UpdatedAt).Round(time.Second))
			}
			m := g.ctrl.Metrics()
			sm := g.sched.Metrics()
			g.logger.Info("Statistics", "submitted", m.SubmittedCount.Load(), "completed", m.CompletedCount.Load(),
				"errors", m.ErrorCount.Load(), "verified", m.VerifiedCount.Load(), "mismatched", m.MismatchCount.Load(),
				"duplicates", sm.DuplicateCount.Load(), "rejected", sm.RejectedCount.Load(),
				"evicted", sm.EvictedCount.Load(), "stale", sm.StaleCount.Load())
		}
	}
}

func (g *Gateway) handleValue(dp *datapoint.Datapoint, v datapoint.Value) {
	delete(g.failures, dp.Name())
	g.logger.Debug("value updated", "datapoint", dp.Name(), "value", v.String())
}

func (g *Gateway) handleError(err error, dp vitoconnect.Datapoint) {
	n := g.failures[dp.Name()] + 1
	g.failures[dp.Name()] = n
	if n == failureWarnThreshold {
		g.logger.Warn("Datapoint keeps failing", "datapoint", dp.Name(), "failures", n, "code", transport.Code(err))
	}
}
