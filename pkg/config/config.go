// Package config loads ipsclink's YAML configuration via viper, running
// a load/defaults/validate pipeline, and converts each raw SystemConfig
// entry into the immutable ipsc/state.SystemConfig the network layer
// actually runs on.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/kb9vqg/ipsclink/pkg/ipsc/packet"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/state"
)

// Config is the top-level configuration document: one SystemConfig per
// IPSC network plus ambient logging settings.
type Config struct {
	Systems map[string]SystemConfig `mapstructure:"systems"`
	Logging LoggingConfig           `mapstructure:"logging"`
}

// SystemConfig is the raw, as-loaded configuration for one IPSC network,
// keyed by the keys named by the configuration schema.
type SystemConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MasterPeer  bool   `mapstructure:"master_peer"`
	TS1Link     bool   `mapstructure:"ts1_link"`
	TS2Link     bool   `mapstructure:"ts2_link"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	RadioID     string `mapstructure:"radio_id"` // hex, left-zero-padded to 8 chars
	IP          string `mapstructure:"ip"`
	Port        int    `mapstructure:"port"`
	MasterIP    string `mapstructure:"master_ip"`
	MasterPort  int    `mapstructure:"master_port"`
	AliveTimer  int    `mapstructure:"alive_timer"`
	AuthKey     string `mapstructure:"auth_key"` // hex, left-zero-padded to 40 chars
	MaxMissed   int    `mapstructure:"max_missed"`
}

// LoggingConfig holds ambient logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and DMRLINK_-prefixed environment
// variables.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("dmrlink")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/ipsclink")
	}

	viper.SetEnvPrefix("DMRLINK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file is fine, defaults apply
		} else if os.IsNotExist(err) {
			// explicitly named file missing is also fine
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// ToIPSC converts a raw, as-loaded SystemConfig into the CORE's
// immutable ipsc/state.SystemConfig, decoding the hex RadioID/AuthKey
// fields and deriving Mode/Flags once.
func (c SystemConfig) ToIPSC(name string) (*state.SystemConfig, error) {
	radioBytes, err := decodeHex(c.RadioID, 8)
	if err != nil {
		return nil, fmt.Errorf("system %s: invalid radio_id: %w", name, err)
	}
	var local packet.RadioID
	copy(local[:], radioBytes)

	var authKey []byte
	if c.AuthEnabled {
		authKey, err = decodeHex(c.AuthKey, 40)
		if err != nil {
			return nil, fmt.Errorf("system %s: invalid auth_key: %w", name, err)
		}
	}

	sc := &state.SystemConfig{
		Name:          name,
		Enabled:       c.Enabled,
		LocalRadioID:  local,
		AuthEnabled:   c.AuthEnabled,
		AuthKey:       authKey,
		IP:            c.IP,
		Port:          c.Port,
		MasterIP:      c.MasterIP,
		MasterPort:    c.MasterPort,
		AliveTimerSec: c.AliveTimer,
		MaxMissed:     c.MaxMissed,
		TS1Link:       c.TS1Link,
		TS2Link:       c.TS2Link,
		MasterPeer:    c.MasterPeer,
	}
	sc.Derive()
	return sc, nil
}

// decodeHex left-zero-pads s to width characters and decodes it as hex,
// matching the wire RADIO_ID/AUTH_KEY hex encoding.
func decodeHex(s string, width int) ([]byte, error) {
	if len(s) > width {
		return nil, fmt.Errorf("value %q longer than %d hex characters", s, width)
	}
	padded := strings.Repeat("0", width-len(s)) + s
	return hex.DecodeString(padded)
}
