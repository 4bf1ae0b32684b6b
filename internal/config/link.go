package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/skylink/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical link defaults file.
const DefaultConfigPath = "config/link.defaults.json"

// LinkConfig holds the link timing and identity parameters shared by the
// payload and ground nodes. Unset fields fall back to compiled-in defaults
// through the Get* methods, so partial files are safe.
type LinkConfig struct {
	// Heartbeat
	HeartbeatInterval        *string `json:"heartbeat_interval,omitempty"` // duration string like "1s"
	HeartbeatTimeout         *string `json:"heartbeat_timeout,omitempty"`
	HeartbeatWarningInterval *string `json:"heartbeat_warning_interval,omitempty"`

	// Loops
	TransmitInterval    *string `json:"transmit_interval,omitempty"`
	ReceivePollInterval *string `json:"receive_poll_interval,omitempty"`
	CommsPollInterval   *string `json:"comms_poll_interval,omitempty"`

	// Cutdown
	MissionDuration *string `json:"mission_duration,omitempty"`
	CutdownHold     *string `json:"cutdown_hold,omitempty"`

	// Radio
	BaudRate    *int    `json:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty"`
	SystemID    *int    `json:"system_id,omitempty"`
	ComponentID *int    `json:"component_id,omitempty"`

	// Reassembly
	StrictReassembly *bool `json:"strict_reassembly,omitempty"`
}

// EmptyLinkConfig returns a LinkConfig with all fields unset.
func EmptyLinkConfig() *LinkConfig {
	return &LinkConfig{}
}

// LoadLinkConfig loads a LinkConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadLinkConfig(path string) (*LinkConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLinkConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns an empty config (all defaults) when
// path is empty.
func LoadOrDefault(path string) (*LinkConfig, error) {
	if path == "" {
		return EmptyLinkConfig(), nil
	}
	return LoadLinkConfig(path)
}

// MustLoadDefaultConfig loads the canonical link defaults from DefaultConfigPath.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *LinkConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadLinkConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func (c *LinkConfig) durations() []struct {
	name string
	v    *string
} {
	return []struct {
		name string
		v    *string
	}{
		{"heartbeat_interval", c.HeartbeatInterval},
		{"heartbeat_timeout", c.HeartbeatTimeout},
		{"heartbeat_warning_interval", c.HeartbeatWarningInterval},
		{"transmit_interval", c.TransmitInterval},
		{"receive_poll_interval", c.ReceivePollInterval},
		{"comms_poll_interval", c.CommsPollInterval},
		{"mission_duration", c.MissionDuration},
		{"cutdown_hold", c.CutdownHold},
	}
}

// Validate checks that the configuration values are valid.
func (c *LinkConfig) Validate() error {
	for _, d := range c.durations() {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, v)
		}
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}
	for _, id := range []struct {
		name string
		v    *int
	}{{"system_id", c.SystemID}, {"component_id", c.ComponentID}} {
		if id.v != nil && (*id.v < 0 || *id.v > 255) {
			return fmt.Errorf("%s must be between 0 and 255, got %d", id.name, *id.v)
		}
	}

	if c.HeartbeatTimeout != nil && c.HeartbeatInterval != nil &&
		c.GetHeartbeatTimeout() <= c.GetHeartbeatInterval() {
		return fmt.Errorf("heartbeat_timeout %s must exceed heartbeat_interval %s",
			c.GetHeartbeatTimeout(), c.GetHeartbeatInterval())
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetHeartbeatInterval returns how often each node sends a heartbeat.
func (c *LinkConfig) GetHeartbeatInterval() time.Duration {
	return durationOr(c.HeartbeatInterval, time.Second)
}

// GetHeartbeatTimeout returns how long without a heartbeat before the link times out.
func (c *LinkConfig) GetHeartbeatTimeout() time.Duration {
	return durationOr(c.HeartbeatTimeout, 5*time.Second)
}

// GetHeartbeatWarningInterval returns the minimum spacing of timeout warnings.
func (c *LinkConfig) GetHeartbeatWarningInterval() time.Duration {
	return durationOr(c.HeartbeatWarningInterval, 10*time.Second)
}

// GetTransmitInterval returns the payload sample and send period.
func (c *LinkConfig) GetTransmitInterval() time.Duration {
	return durationOr(c.TransmitInterval, 5*time.Second)
}

// GetReceivePollInterval returns the ground receive loop sleep.
func (c *LinkConfig) GetReceivePollInterval() time.Duration {
	return durationOr(c.ReceivePollInterval, 10*time.Millisecond)
}

// GetCommsPollInterval returns the payload comms loop sleep.
func (c *LinkConfig) GetCommsPollInterval() time.Duration {
	return durationOr(c.CommsPollInterval, 100*time.Millisecond)
}

// GetMissionDuration returns the flight ceiling after which the payload cuts down.
func (c *LinkConfig) GetMissionDuration() time.Duration {
	return durationOr(c.MissionDuration, 2*time.Hour)
}

// GetCutdownHold returns how long the cutdown output stays asserted.
func (c *LinkConfig) GetCutdownHold() time.Duration {
	return durationOr(c.CutdownHold, 60*time.Second)
}

// GetSystemID returns the MAVLink system id.
func (c *LinkConfig) GetSystemID() uint8 {
	if c.SystemID == nil {
		return 1
	}
	return uint8(*c.SystemID)
}

// GetComponentID returns the MAVLink component id.
func (c *LinkConfig) GetComponentID() uint8 {
	if c.ComponentID == nil {
		return 1
	}
	return uint8(*c.ComponentID)
}

// GetStrictReassembly reports whether the ground should use strict reassembly.
func (c *LinkConfig) GetStrictReassembly() bool {
	if c.StrictReassembly == nil {
		return false // default: match deployed firmware
	}
	return *c.StrictReassembly
}

// PortOptions returns the radio serial options. Unset values are left zero
// for serialmux to default.
func (c *LinkConfig) PortOptions() serialmux.PortOptions {
	var o serialmux.PortOptions
	if c.BaudRate != nil {
		o.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		o.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		o.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		o.Parity = *c.Parity
	}
	return o
}
