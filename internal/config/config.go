// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. VITO_LINK_TYPE.
const EnvPrefix = "VITO"

// Config defines the global configuration structure
type Config struct {
	Log        LogConfig         `mapstructure:"log"`
	Link       LinkConfig        `mapstructure:"link"`
	Scheduler  SchedulerConfig   `mapstructure:"scheduler"`
	Controller ControllerConfig  `mapstructure:"controller"`
	Datapoints []DatapointConfig `mapstructure:"datapoints"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	File   string `mapstructure:"file"`   // Log file path
	Format string `mapstructure:"format"` // text, json, console
}

// LinkConfig defines the connection to the heating controller
type LinkConfig struct {
	Type            string        `mapstructure:"type"`     // "serial", "tcp", "local"
	Protocol        string        `mapstructure:"protocol"` // "P300", "KW"
	QueueSize       int           `mapstructure:"queue_size"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	Serial          SerialConfig  `mapstructure:"serial"` // Used if Type is "serial"
	Tcp             TcpConfig     `mapstructure:"tcp"`    // Used if Type is "tcp"
	Local           LocalConfig   `mapstructure:"local"`  // Used if Type is "local"
}

// SerialConfig defines Optolink adapter settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Read timeout of the port
}

// TcpConfig defines a serial-over-TCP bridge (ser2net and the like)
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "192.168.1.100:3000"
	Timeout time.Duration `mapstructure:"timeout"` // Dial timeout
}

// LocalConfig defines the simulated controller used without hardware
type LocalConfig struct {
	Latency     time.Duration     `mapstructure:"latency"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap", "sql"
	Path string `mapstructure:"path"` // File path for "file/mmap/sql" type
}

// SchedulerConfig defines request scheduling
type SchedulerConfig struct {
	Capacity           int           `mapstructure:"capacity"`
	InterRequestDelay  time.Duration `mapstructure:"inter_request_delay"`
	RetryThrottle      time.Duration `mapstructure:"retry_throttle"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ReadDedupThreshold int           `mapstructure:"read_dedup_threshold"`
}

// ControllerConfig defines the polling cadence
type ControllerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	UpdateInterval  time.Duration `mapstructure:"update_interval"`
	ReportInterval  time.Duration `mapstructure:"report_interval"`
	ReadBatchSize   int           `mapstructure:"read_batch_size"`
	CleanupEvery    int           `mapstructure:"cleanup_every"`
	HeadroomPercent int           `mapstructure:"headroom_percent"`
}

// DatapointConfig defines one value of the controller
type DatapointConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"` // e.g. "0x0800"
	Codec   string `mapstructure:"codec"`   // temp, temp_s, stat, count, count_s, hours, cop, raw
	Length  int    `mapstructure:"length"`  // Only needed for raw
	Value   string `mapstructure:"value"`   // Optional value written at startup

	Addr uint16 `mapstructure:"-"`
}

// SetDefaults registers the default of every key, so that environment
// overrides reach keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", "text")

	v.SetDefault("link.type", "serial")
	v.SetDefault("link.protocol", "P300")
	v.SetDefault("link.queue_size", 4)
	v.SetDefault("link.response_timeout", 2*time.Second)
	v.SetDefault("link.serial.device", "/dev/ttyUSB0")
	v.SetDefault("link.serial.baud_rate", 4800)
	v.SetDefault("link.serial.data_bits", 8)
	v.SetDefault("link.serial.parity", "E")
	v.SetDefault("link.serial.stop_bits", 2)
	v.SetDefault("link.serial.timeout", 100*time.Millisecond)
	v.SetDefault("link.tcp.address", "")
	v.SetDefault("link.tcp.timeout", 5*time.Second)
	v.SetDefault("link.local.latency", 20*time.Millisecond)
	v.SetDefault("link.local.persistence.type", "memory")
	v.SetDefault("link.local.persistence.path", "")

	v.SetDefault("scheduler.capacity", 32)
	v.SetDefault("scheduler.inter_request_delay", 50*time.Millisecond)
	v.SetDefault("scheduler.retry_throttle", 100*time.Millisecond)
	v.SetDefault("scheduler.request_timeout", 30*time.Second)
	v.SetDefault("scheduler.read_dedup_threshold", 8)

	v.SetDefault("controller.tick_interval", 10*time.Millisecond)
	v.SetDefault("controller.update_interval", 60*time.Second)
	v.SetDefault("controller.report_interval", 5*time.Minute)
	v.SetDefault("controller.read_batch_size", 8)
	v.SetDefault("controller.cleanup_every", 10)
	v.SetDefault("controller.headroom_percent", 80)
}

// BindFlags registers the command-line overrides on flags.
func BindFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Configuration file path.")
	flags.String("env-file", ".env", "Environment file loaded before the configuration.")
	flags.StringP("log.level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	flags.String("log.format", "text", "Log format (text, json, console).")
	flags.StringP("link.type", "t", "serial", "Link type (serial, tcp, local).")
	flags.String("link.protocol", "P300", "Optolink protocol (P300, KW).")
	flags.StringP("link.serial.device", "p", "/dev/ttyUSB0", "Serial port device name.")
	flags.String("link.tcp.address", "", "Serial bridge address (host:port).")
}

// LoadConfig loads configuration from an optional env file, the config file,
// VITO_* environment variables and flags, in increasing priority.
// flags may be nil.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	envFile := ".env"
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	explicit := configFile != ""
	if explicit {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/vitoconnect/")
		v.AddConfigPath("$HOME/.vitoconnect")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.fixup(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate / Fixups
func (c *Config) fixup() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)

	c.Link.Type = strings.ToLower(c.Link.Type)
	switch c.Link.Type {
	case "serial", "tcp", "local":
	default:
		return fmt.Errorf("unknown link type %q", c.Link.Type)
	}
	c.Link.Protocol = strings.ToUpper(c.Link.Protocol)
	switch c.Link.Protocol {
	case "P300", "KW":
	default:
		return fmt.Errorf("unknown link protocol %q", c.Link.Protocol)
	}
	if c.Link.Type == "tcp" && c.Link.Tcp.Address == "" {
		return errors.New("link.tcp.address is required for a tcp link")
	}
	fixupSerial(&c.Link.Serial)

	if c.Controller.HeadroomPercent <= 0 || c.Controller.HeadroomPercent > 100 {
		return fmt.Errorf("controller.headroom_percent %d out of range (0, 100]", c.Controller.HeadroomPercent)
	}

	seen := make(map[string]struct{}, len(c.Datapoints))
	for i := range c.Datapoints {
		dp := &c.Datapoints[i]
		if dp.Name == "" {
			return fmt.Errorf("datapoint #%d has no name", i)
		}
		if _, ok := seen[dp.Name]; ok {
			return fmt.Errorf("duplicate datapoint %q", dp.Name)
		}
		seen[dp.Name] = struct{}{}

		addr, err := ParseAddress(dp.Address)
		if err != nil {
			return fmt.Errorf("datapoint %q: %w", dp.Name, err)
		}
		dp.Addr = addr
		dp.Codec = strings.ToLower(dp.Codec)
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 100 * time.Millisecond
	}
}

// ParseAddress parses a 16-bit data point address. Hex ("0x0800"), octal
// and decimal notations are accepted.
func ParseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint16(v), nil
}
