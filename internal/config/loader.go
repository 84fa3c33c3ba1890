package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".pinguess"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PINGUESS"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("PINGUESS_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("PINGUESS_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults. The result is not validated;
// callers decide when a configuration error becomes fatal.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Env files feed both ${VAR} references and PINGUESS_* overrides.
	if files := LoadEnvFileCandidates(); len(files) > 0 {
		slog.Debug("Loaded env files", "files", files)
	}

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(path, cfg, nil); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	groups := []struct {
		prefix string
		target any
	}{
		{EnvPrefix + "_AGENT", &cfg.Agent},
		{EnvPrefix + "_TARGET", &cfg.Target},
		{EnvPrefix + "_BACKOFF", &cfg.Backoff},
		{EnvPrefix + "_PATHS", &cfg.Paths},
		{EnvPrefix + "_KAFKA", &cfg.Kafka},
		{EnvPrefix + "_SLACK", &cfg.Slack},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	// Expand ~ in paths
	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				*p = filepath.Join(home, (*p)[1:])
			}
		}
	}
	expandHome(&cfg.Paths.LogFile)
	expandHome(&cfg.Paths.TimelineDB)
	expandHome(&cfg.Paths.LockDir)

	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// maxIncludeDepth bounds "$include" chains; a shared seed file is one level.
const maxIncludeDepth = 4

// includeHeader is the only config key that is not a Config field. It takes
// one path or a list, relative to the including file.
type includeHeader struct {
	Include json.RawMessage `json:"$include"`
}

// decodeFile applies path onto cfg: its includes first, then its own fields.
// json.Unmarshal leaves absent fields untouched, so every layer overrides
// only what it names. chain holds the files currently being decoded.
func decodeFile(path string, cfg *Config, chain []string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	for _, p := range chain {
		if p == abs {
			return fmt.Errorf("%w: config include cycle detected at %s", ErrConfiguration, abs)
		}
	}
	if len(chain) >= maxIncludeDepth {
		return fmt.Errorf("%w: config includes nested deeper than %d at %s", ErrConfiguration, maxIncludeDepth, abs)
	}
	chain = append(chain, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfiguration, abs, err)
	}
	data = expandEnvRefs(data)

	var hdr includeHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfiguration, abs, err)
	}
	includes, err := includePaths(hdr.Include)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfiguration, abs, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		if err := decodeFile(inc, cfg, chain); err != nil {
			return err
		}
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfiguration, abs, err)
	}
	return nil
}

func includePaths(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if strings.TrimSpace(one) == "" {
			return nil, nil
		}
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errors.New("$include must be a path or a list of paths")
	}
	return many, nil
}

// expandEnvRefs replaces ${VAR} with the JSON-escaped value of VAR, so a
// webhook URL or broker list can live in an env file. Unset variables are
// left as written.
func expandEnvRefs(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[2 : len(match)-1])
		value, ok := os.LookupEnv(name)
		if !ok {
			return match
		}
		quoted, _ := json.Marshal(value)
		return quoted[1 : len(quoted)-1]
	})
}
