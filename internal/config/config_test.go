// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log:
  level: DEBUG
link:
  type: tcp
  protocol: kw
  tcp:
    address: "127.0.0.1:3000"
  serial:
    parity: e
scheduler:
  capacity: 16
controller:
  update_interval: 30s
datapoints:
  - name: outside_temp
    address: "0x5525"
    codec: TEMP
  - name: mode
    address: "8960"
    codec: stat
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "tcp", cfg.Link.Type)
	assert.Equal(t, "KW", cfg.Link.Protocol)
	assert.Equal(t, "127.0.0.1:3000", cfg.Link.Tcp.Address)
	assert.Equal(t, "E", cfg.Link.Serial.Parity)
	assert.Equal(t, 4800, cfg.Link.Serial.BaudRate)
	assert.Equal(t, 4, cfg.Link.QueueSize)

	assert.Equal(t, 16, cfg.Scheduler.Capacity)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.InterRequestDelay)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.RequestTimeout)
	assert.Equal(t, 8, cfg.Scheduler.ReadDedupThreshold)

	assert.Equal(t, 30*time.Second, cfg.Controller.UpdateInterval)
	assert.Equal(t, 80, cfg.Controller.HeadroomPercent)

	require.Len(t, cfg.Datapoints, 2)
	assert.Equal(t, uint16(0x5525), cfg.Datapoints[0].Addr)
	assert.Equal(t, "temp", cfg.Datapoints[0].Codec)
	assert.Equal(t, uint16(8960), cfg.Datapoints[1].Addr)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("VITO_SCHEDULER_CAPACITY", "24")
	t.Setenv("VITO_LINK_PROTOCOL", "P300")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--link.type", "local", "--env-file", ""}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Scheduler.Capacity)
	assert.Equal(t, "P300", cfg.Link.Protocol)
	assert.Equal(t, "local", cfg.Link.Type)
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("VITO_CONTROLLER_READ_BATCH_SIZE=3\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("VITO_CONTROLLER_READ_BATCH_SIZE") })

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--env-file", envFile}))

	cfg, err := LoadConfig(writeConfig(t, "link:\n  type: local\n"), flags)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Controller.ReadBatchSize)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"UnknownLinkType", "link:\n  type: usb\n"},
		{"UnknownProtocol", "link:\n  type: local\n  protocol: gwg\n"},
		{"TcpWithoutAddress", "link:\n  type: tcp\n"},
		{"Headroom", "link:\n  type: local\ncontroller:\n  headroom_percent: 120\n"},
		{"DuplicateDatapoint", "link:\n  type: local\ndatapoints:\n  - {name: a, address: '0x01', codec: temp}\n  - {name: a, address: '0x02', codec: temp}\n"},
		{"BadAddress", "link:\n  type: local\ndatapoints:\n  - {name: a, address: '0x10000', codec: temp}\n"},
		{"UnnamedDatapoint", "link:\n  type: local\ndatapoints:\n  - {address: '0x01', codec: temp}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"0x0800", 0x0800, false},
		{" 0X5525 ", 0x5525, false},
		{"2048", 2048, false},
		{"0xFFFF", 0xFFFF, false},
		{"0x10000", 0, true},
		{"", 0, true},
		{"temp", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
