package app

import (
	"encoding/hex"
	"fmt"
	"os"

	"capsuled/pkg/config"
)

// validateConfig performs quick, fail-fast checks of the effective
// configuration before starting long-running services.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, CAPSULED_DB_PATH env, or server.db_path in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	enc := eff.Config.Security.Encryption
	if enc.Use {
		if enc.MasterKeyHex == "" && enc.MasterKeyFile == "" {
			return fmt.Errorf("encryption enabled but no master key provided: set security.encryption.master_key_hex or master_key_file")
		}
		if enc.MasterKeyHex != "" {
			if _, err := hex.DecodeString(enc.MasterKeyHex); err != nil {
				return fmt.Errorf("invalid master_key_hex: %w", err)
			}
		}
	}

	for peer, endpoint := range eff.Config.Sharing.Peers {
		if endpoint == "" {
			return fmt.Errorf("sharing peer %q has an empty endpoint", peer)
		}
	}

	return nil
}
