package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadUsesDefaultsWhenNoFile(t *testing.T) {
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected Logging.Level default \"info\", got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected Logging.Format default \"text\", got %q", cfg.Logging.Format)
	}
}

func TestToIPSCDerivesConfig(t *testing.T) {
	raw := SystemConfig{
		Enabled:     true,
		TS1Link:     true,
		AuthEnabled: true,
		RadioID:     "F4240", // 1000000
		IP:          "0.0.0.0",
		Port:        50000,
		MasterIP:    "10.0.0.1",
		MasterPort:  50000,
		AliveTimer:  5,
		AuthKey:     "1A",
		MaxMissed:   3,
	}

	sc, err := raw.ToIPSC("A")
	if err != nil {
		t.Fatalf("ToIPSC returned error: %v", err)
	}
	if sc.LocalRadioID.Uint32() != 1000000 {
		t.Errorf("LocalRadioID = %d, want 1000000", sc.LocalRadioID.Uint32())
	}
	if len(sc.AuthKey) != 20 {
		t.Errorf("AuthKey length = %d, want 20 (40 hex chars)", len(sc.AuthKey))
	}
	if sc.Mode != 0x69 {
		t.Errorf("Mode = 0x%02X, want 0x69 (ts1 only)", sc.Mode)
	}
}

func TestToIPSCRejectsOversizedRadioID(t *testing.T) {
	raw := SystemConfig{RadioID: "123456789"} // 9 hex chars, exceeds 8
	if _, err := raw.ToIPSC("A"); err == nil {
		t.Fatal("expected error for radio_id longer than 8 hex characters")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Run("missing radio_id", func(t *testing.T) {
		cfg := &Config{
			Logging: LoggingConfig{Level: "info"},
			Systems: map[string]SystemConfig{
				"a": {Enabled: true, Port: 50000, AliveTimer: 5, MaxMissed: 3, MasterPeer: true},
			},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for missing radio_id")
		}
	})

	t.Run("peer system missing master_ip", func(t *testing.T) {
		cfg := &Config{
			Logging: LoggingConfig{Level: "info"},
			Systems: map[string]SystemConfig{
				"a": {Enabled: true, RadioID: "1", Port: 50000, AliveTimer: 5, MaxMissed: 3},
			},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for non-master system without master_ip")
		}
	})

	t.Run("auth enabled without key", func(t *testing.T) {
		cfg := &Config{
			Logging: LoggingConfig{Level: "info"},
			Systems: map[string]SystemConfig{
				"a": {
					Enabled: true, RadioID: "1", Port: 50000, AliveTimer: 5, MaxMissed: 3,
					MasterPeer: true, AuthEnabled: true,
				},
			},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for auth_enabled without auth_key")
		}
	})

	t.Run("disabled system skipped", func(t *testing.T) {
		cfg := &Config{
			Logging: LoggingConfig{Level: "info"},
			Systems: map[string]SystemConfig{
				"a": {Enabled: false},
			},
		}
		if err := validate(cfg); err != nil {
			t.Fatalf("expected disabled system to be skipped, got error: %v", err)
		}
	})

	t.Run("valid master_peer system", func(t *testing.T) {
		cfg := &Config{
			Logging: LoggingConfig{Level: "info"},
			Systems: map[string]SystemConfig{
				"a": {Enabled: true, RadioID: "2328", Port: 50000, AliveTimer: 5, MaxMissed: 3, MasterPeer: true},
			},
		}
		if err := validate(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
