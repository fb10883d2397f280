package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds derived runtime values that other packages query at
// runtime (populated during startup after merging env+file).
type RuntimeConfig struct {
	BackendKeys  map[string]struct{}
	FrontendKeys map[string]struct{}
	AdminKeys    map[string]struct{}
	SigningKeys  map[string]struct{}
}

var (
	runtimeMu  sync.RWMutex
	runtimeCfg *RuntimeConfig
	currentCfg Config
)

// SetRuntime sets the canonical runtime config used by the running server.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeCfg = rc
}

func copyKeys(src map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	if src == nil {
		return out
	}
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

// SetCurrent publishes the merged config for packages that read settings
// at runtime (limits, sharing peers, cleanup tuning).
func SetCurrent(c Config) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	currentCfg = c
}

// Current returns the published merged config.
func Current() Config {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	return currentCfg
}

// Limits returns the storage quota section of the current config.
func Limits() LimitsConfig {
	return Current().Limits
}

// GetBackendKeys returns a copy of configured backend keys.
func GetBackendKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil {
		return map[string]struct{}{}
	}
	return copyKeys(runtimeCfg.BackendKeys)
}

// GetFrontendKeys returns a copy of configured frontend keys.
func GetFrontendKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil {
		return map[string]struct{}{}
	}
	return copyKeys(runtimeCfg.FrontendKeys)
}

// GetAdminKeys returns a copy of configured admin keys.
func GetAdminKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil {
		return map[string]struct{}{}
	}
	return copyKeys(runtimeCfg.AdminKeys)
}

// GetSigningKeys returns a copy of configured signing keys.
func GetSigningKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil {
		return map[string]struct{}{}
	}
	return copyKeys(runtimeCfg.SigningKeys)
}

// EffectiveConfigResult is the merged configuration plus provenance info
// used by startup banners and diagnostics.
type EffectiveConfigResult struct {
	Config Config
	// Source is the dominant origin of addr/db settings: flags|env|config.
	Source string
	Addr   string
	DBPath string
}

// ParseCommandFlags registers and parses the standard command-line flags.
// It returns the raw values plus a set of flags explicitly provided, so
// callers can apply flags-win-over-env precedence.
func ParseCommandFlags() (addr, db, cfgPath string, set map[string]bool) {
	a := flag.String("addr", "127.0.0.1:8080", "listen address")
	d := flag.String("db", "./capsuledata", "path to database directory")
	c := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *a, *d, *c, set
}

// ResolveConfigPath picks the config file path: explicit flag wins, then
// CAPSULED_CONFIG, then ./capsuled.yaml if present.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if p := os.Getenv("CAPSULED_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("capsuled.yaml"); err == nil {
		return "capsuled.yaml"
	}
	return ""
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadEffective merges the config file (when present) with CAPSULED_* env
// overrides. Env wins over file; flags are applied by the caller on top.
func LoadEffective(path string) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	res.Source = "default"
	if path != "" {
		c, err := LoadFile(path)
		if err != nil {
			return res, err
		}
		res.Config = c
		res.Source = "config"
	}
	if applyEnv(&res.Config) {
		res.Source = "env"
	}
	res.Addr = res.Config.Addr()
	res.DBPath = res.Config.Server.DBPath
	if res.DBPath == "" {
		res.DBPath = "./capsuledata"
	}
	return res, nil
}

// applyEnv overlays CAPSULED_* env vars onto c and reports whether any
// were present.
func applyEnv(c *Config) bool {
	used := false
	if v := os.Getenv("CAPSULED_ADDR"); v != "" {
		used = true
		if host, port, ok := splitHostPort(v); ok {
			c.Server.Address = host
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CAPSULED_DB_PATH"); v != "" {
		used = true
		c.Server.DBPath = v
	}
	if v := os.Getenv("CAPSULED_LOG_LEVEL"); v != "" {
		used = true
		c.Logging.Level = v
	}
	if v := os.Getenv("CAPSULED_BACKEND_KEYS"); v != "" {
		used = true
		c.Security.APIKeys.Backend = splitCSV(v)
	}
	if v := os.Getenv("CAPSULED_FRONTEND_KEYS"); v != "" {
		used = true
		c.Security.APIKeys.Frontend = splitCSV(v)
	}
	if v := os.Getenv("CAPSULED_ADMIN_KEYS"); v != "" {
		used = true
		c.Security.APIKeys.Admin = splitCSV(v)
	}
	if v := os.Getenv("CAPSULED_ENCRYPTION_KEY_HEX"); v != "" {
		used = true
		c.Security.Encryption.Use = true
		c.Security.Encryption.MasterKeyHex = v
	}
	return used
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitHostPort(s string) (string, int, bool) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "", 0, false
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, false
	}
	return s[:i], port, true
}
