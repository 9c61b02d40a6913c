// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/ffutop/vitoconnect/internal/scheduler"
	"github.com/ffutop/vitoconnect/transport/local"
	"github.com/ffutop/vitoconnect/transport/optolink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localConfig() *config.Config {
	return &config.Config{
		Link: config.LinkConfig{
			Type:      "local",
			Protocol:  "P300",
			QueueSize: 4,
			Local: config.LocalConfig{
				Persistence: config.PersistenceConfig{Type: "memory"},
			},
		},
		Scheduler: config.SchedulerConfig{
			InterRequestDelay:  time.Millisecond,
			RetryThrottle:      time.Millisecond,
			ReadDedupThreshold: 8,
		},
		Controller: config.ControllerConfig{
			TickInterval:    time.Millisecond,
			UpdateInterval:  20 * time.Millisecond,
			ReportInterval:  10 * time.Millisecond,
			HeadroomPercent: 80,
		},
		Datapoints: []config.DatapointConfig{
			{Name: "outside", Addr: 0x5525, Codec: "temp"},
			{Name: "setpoint", Addr: 0x2306, Codec: "temp_s", Value: "21"},
		},
	}
}

func TestNewLink(t *testing.T) {
	cfg := config.LinkConfig{Type: "tcp", Protocol: "KW", Tcp: config.TcpConfig{Address: "127.0.0.1:1"}}
	link, err := NewLink(cfg, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &optolink.Link{}, link)

	cfg.Type = "local"
	link, err = NewLink(cfg, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &local.Link{}, link)

	cfg.Type = "modbus"
	_, err = NewLink(cfg, discardLogger())
	assert.Error(t, err)
}

func TestSchedulerOptions_ReadDedupThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		queued    int
	}{
		{name: "zero dedupes every read", threshold: 0, queued: 1},
		{name: "above queue length", threshold: 8, queued: 2},
		{name: "negative keeps default", threshold: -1, queued: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.SchedulerConfig{ReadDedupThreshold: tt.threshold}
			sched, err := scheduler.New(SchedulerOptions(cfg, discardLogger())...)
			require.NoError(t, err)

			assert.Equal(t, scheduler.Queued, sched.Enqueue(0x5525, 2, scheduler.Read, 1, 0))
			sched.Enqueue(0x5525, 2, scheduler.Read, 2, 0)
			assert.Equal(t, tt.queued, sched.ReadCount())
		})
	}
}

func TestNew_InvalidDatapoint(t *testing.T) {
	cfg := localConfig()
	cfg.Datapoints = append(cfg.Datapoints, config.DatapointConfig{Name: "bad", Addr: 1, Codec: "nope"})

	_, err := New("test", cfg, discardLogger())
	assert.Error(t, err)
}

func TestGateway_Set(t *testing.T) {
	g, err := New("test", localConfig(), discardLogger())
	require.NoError(t, err)

	assert.NoError(t, g.Set("setpoint", "22"))
	assert.Error(t, g.Set("setpoint", "not a number"))
	assert.Error(t, g.Set("missing", "1"))
	assert.Len(t, g.Controller().Datapoints(), 2)
}

func TestGateway_RunsAgainstLocalDevice(t *testing.T) {
	g, err := New("test", localConfig(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Start(ctx) }()

	reading := func(name, want string) func() bool {
		return func() bool {
			r, ok := g.Controller().Reading(name)
			return ok && r.Value == want
		}
	}

	// The local device starts zeroed; the configured set point is written,
	// verified and then read back.
	require.Eventually(t, reading("outside", "0"), 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, reading("setpoint", "21"), 2*time.Second, 5*time.Millisecond)

	require.NoError(t, g.Set("setpoint", "23"))
	require.Eventually(t, reading("setpoint", "23"), 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, g.Controller().Metrics().VerifiedCount.Load(), uint64(2))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop")
	}
}
