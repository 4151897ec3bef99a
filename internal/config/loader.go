package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions rejects a config file with overly
// permissive permissions: it returns an error whenever any group or
// world permission bit is set. Config files carry key file paths and
// peer topology.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadNodeConfig loads node configuration from a YAML file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade meshnoded", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	return &cfg, nil
}

// ValidateNodeConfig checks the fields LoadNodeConfig cannot validate
// through the YAML schema alone.
func ValidateNodeConfig(cfg *NodeConfig) error {
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required")
	}
	if len(cfg.Network.ListenAddresses) == 0 {
		return fmt.Errorf("network.listen_addresses must contain at least one address")
	}
	for i, p := range cfg.Peers {
		if p.Address == "" {
			return fmt.Errorf("peers[%d].address is required", i)
		}
	}
	for i, sc := range cfg.Seeding {
		if sc.Rid == "" {
			return fmt.Errorf("seeding[%d].rid is required", i)
		}
		if sc.Scope != "" && sc.Scope != "all" && sc.Scope != "followed" {
			return fmt.Errorf("seeding[%d].scope must be \"all\" or \"followed\", got %q", i, sc.Scope)
		}
	}
	for i, f := range cfg.Following {
		if f.Id == "" {
			return fmt.Errorf("following[%d].id is required", i)
		}
	}
	if _, err := durationOr(cfg.Scheduling.IdleInterval, 0); err != nil {
		return fmt.Errorf("scheduling.idle_interval: %w", err)
	}
	if _, err := durationOr(cfg.Scheduling.SyncInterval, 0); err != nil {
		return fmt.Errorf("scheduling.sync_interval: %w", err)
	}
	if _, err := durationOr(cfg.Scheduling.AnnounceInterval, 0); err != nil {
		return fmt.Errorf("scheduling.announce_interval: %w", err)
	}
	if _, err := durationOr(cfg.Scheduling.PruneInterval, 0); err != nil {
		return fmt.Errorf("scheduling.prune_interval: %w", err)
	}
	if _, err := durationOr(cfg.Scheduling.FetchTimeout, 0); err != nil {
		return fmt.Errorf("scheduling.fetch_timeout: %w", err)
	}
	return nil
}

// FindConfigFile searches for a meshnoded config file in standard
// locations. Search order: explicitPath (if given), ./meshnoded.yaml,
// ~/.config/meshnoded/config.yaml, /etc/meshnoded/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{"meshnoded.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "meshnoded", "config.yaml"))
	}
	searchPaths = append(searchPaths, filepath.Join("/etc", "meshnoded", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nRun 'meshnoded init' to create one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// ResolveConfigPaths resolves relative file paths in the config to be
// relative to the config file's directory, so configs under
// ~/.config/meshnoded/ can reference key files with relative paths.
func ResolveConfigPaths(cfg *NodeConfig, configDir string) {
	if cfg.Identity.KeyFile != "" && !filepath.IsAbs(cfg.Identity.KeyFile) {
		cfg.Identity.KeyFile = filepath.Join(configDir, cfg.Identity.KeyFile)
	}
}

// DefaultConfigDir returns the default meshnoded config directory
// (~/.config/meshnoded).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "meshnoded"), nil
}
