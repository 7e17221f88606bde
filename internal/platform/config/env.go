package config

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"
)

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	o := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEnvFile reads local overrides from path instead of .env. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that win over both the process environment and the env file.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// env is the layered view Load reads from: explicit map, then process environment, then the
// env file. Values that fail to parse are remembered so Load can report them together.
type env struct {
	layers  []map[string]string
	system  bool
	invalid []string
}

func openEnv(o loaderOptions) (*env, error) {
	file, err := readEnvFile(o.envFile)
	if err != nil {
		return nil, err
	}
	return &env{layers: []map[string]string{o.envMap, file}, system: o.useSystemEnv}, nil
}

func (e *env) lookup(key string) string {
	if v, ok := e.layers[0][key]; ok && v != "" {
		return strings.TrimSpace(v)
	}
	if e.system {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(e.layers[1][key])
}

func (e *env) str(key, fallback string) string {
	if v := e.lookup(key); v != "" {
		return v
	}
	return fallback
}

func (e *env) lower(key, fallback string) string {
	return strings.ToLower(e.str(key, fallback))
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	raw := e.lookup(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return d
}

func (e *env) int(key string, fallback int) int {
	raw := e.lookup(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return n
}

func (e *env) bool(key string, fallback bool) bool {
	switch strings.ToLower(e.lookup(key)) {
	case "":
		return fallback
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		e.invalid = append(e.invalid, key)
		return fallback
	}
}

// list splits a comma separated value, dropping blanks.
func (e *env) list(key string) []string {
	out := []string{}
	for _, part := range strings.Split(e.lookup(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs parses name=value,name=value with lower-cased names.
func (e *env) pairs(key string) map[string]string {
	out := make(map[string]string)
	for _, entry := range e.list(key) {
		name, value, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			e.invalid = append(e.invalid, key)
			continue
		}
		out[name] = value
	}
	return out
}

// EnvironmentValues returns the merged environment with Load's precedence, for wiring that has
// to happen before Load, such as the secret fetcher.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	o := newLoaderOptions(opts)
	values, err := readEnvFile(o.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if key = strings.TrimSpace(key); ok && key != "" {
				values[key] = value
			}
		}
	}
	maps.Copy(values, o.envMap)
	return values, nil
}

// readEnvFile parses KEY=VALUE lines, tolerating comments, blank lines, an export prefix and
// quoted values. A missing file is not an error.
func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.TrimSpace(strings.TrimPrefix(text, "export "))
		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("config: %s:%d: expected KEY=VALUE", path, line)
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}
