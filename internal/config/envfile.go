package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// envPair is one KEY=VALUE assignment from an env file.
type envPair struct {
	key, value string
}

// EnvFileCandidates lists env files in load order. PINGUESS_ENV_FILE may hold
// several paths separated by the OS list separator; a per-host file there is
// the usual place for PINGUESS_AGENT_ID.
func EnvFileCandidates() []string {
	var out []string
	for _, p := range filepath.SplitList(os.Getenv("PINGUESS_ENV_FILE")) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out,
			filepath.Join(home, ".config", "pinguess", "env"),
			filepath.Join(home, ConfigDir, "env"),
			filepath.Join(home, ConfigDir, ".env"),
		)
	}
	return out
}

// LoadEnvFileCandidates sets variables from every candidate that exists and
// returns the files it read. Variables already in the process environment
// win, and so do earlier files over later ones.
func LoadEnvFileCandidates() []string {
	var loaded []string
	seen := map[string]struct{}{}
	for _, p := range EnvFileCandidates() {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		f, err := os.Open(p)
		if err != nil {
			continue
		}
		pairs, err := parseEnv(f, p)
		f.Close()
		if err != nil {
			slog.Warn("Skipping unreadable env file", "file", p, "error", err)
			continue
		}
		applyEnv(pairs)
		loaded = append(loaded, p)
	}
	return loaded
}

// parseEnv reads KEY=VALUE lines. Blank lines, # comments and an optional
// "export " prefix are accepted; malformed lines are logged and skipped.
func parseEnv(r io.Reader, name string) ([]envPair, error) {
	var pairs []envPair
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, raw, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			slog.Warn("Ignoring malformed env line", "file", name, "line", lineNo)
			continue
		}
		value, err := envValue(strings.TrimSpace(raw))
		if err != nil {
			slog.Warn("Ignoring env line with bad quoting", "file", name, "line", lineNo, "key", key)
			continue
		}
		pairs = append(pairs, envPair{key: key, value: value})
	}
	return pairs, sc.Err()
}

// envValue unquotes a value. Double quotes take Go escapes such as \n,
// single quotes are literal, and unquoted values drop a trailing " # comment".
func envValue(raw string) (string, error) {
	switch {
	case len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"':
		return strconv.Unquote(raw)
	case len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'':
		return raw[1 : len(raw)-1], nil
	case strings.HasPrefix(raw, "\"") || strings.HasPrefix(raw, "'"):
		return "", fmt.Errorf("unterminated quote")
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	return raw, nil
}

func applyEnv(pairs []envPair) {
	for _, p := range pairs {
		if _, exists := os.LookupEnv(p.key); exists {
			continue
		}
		_ = os.Setenv(p.key, p.value)
	}
}
