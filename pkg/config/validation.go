package config

import "fmt"

// validate validates the configuration.
func validate(cfg *Config) error {
	if cfg.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	for name, sys := range cfg.Systems {
		if !sys.Enabled {
			continue
		}

		if sys.RadioID == "" {
			return fmt.Errorf("system %s: radio_id is required", name)
		}
		if sys.Port <= 0 || sys.Port > 65535 {
			return fmt.Errorf("system %s: port must be between 1 and 65535", name)
		}
		if sys.AliveTimer <= 0 {
			return fmt.Errorf("system %s: alive_timer must be positive", name)
		}
		if sys.MaxMissed <= 0 {
			return fmt.Errorf("system %s: max_missed must be positive", name)
		}
		if sys.AuthEnabled && sys.AuthKey == "" {
			return fmt.Errorf("system %s: auth_key is required when auth_enabled", name)
		}

		if !sys.MasterPeer {
			if sys.MasterIP == "" {
				return fmt.Errorf("system %s: master_ip is required unless master_peer", name)
			}
			if sys.MasterPort <= 0 || sys.MasterPort > 65535 {
				return fmt.Errorf("system %s: master_port must be between 1 and 65535", name)
			}
		}
	}

	return nil
}
