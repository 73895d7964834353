package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Parser errors.
var (
	ErrInvalidYAML       = errors.New("invalid YAML format")
	ErrInvalidDuration   = errors.New("invalid duration format")
	ErrInvalidNumber     = errors.New("invalid number format")
	ErrInvalidSize       = errors.New("invalid size format")
	ErrFileNotFound      = errors.New("configuration file not found")
	ErrMissingConfigFile = errors.New("config file path is required")
	ErrMissingOnChange   = errors.New("onChange callback is required")
)

// LoadConfig loads configuration from a file path.
// It reads the file, substitutes environment variables, parses YAML,
// and applies defaults for missing values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig parses configuration from YAML data.
// It substitutes environment variables and applies defaults for missing values.
// Unknown keys are ignored.
func ParseConfig(data []byte) (*Config, error) {
	values, err := flattenYAML(substituteEnvVars(data))
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	for path, value := range values {
		set, ok := setters[path]
		if !ok || value == "" {
			continue
		}
		if err := set(config, value); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return config, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name, fallback, hasDefault := strings.Cut(string(match[2:len(match)-1]), ":-")
		if val := os.Getenv(name); val != "" || !hasDefault {
			return []byte(val)
		}
		return []byte(fallback)
	})
}

// flattenYAML reads the block-mapping subset of YAML used by the config file
// and returns scalar values keyed by their dotted path, such as
// "storage.dataDir". A key with an empty value opens a nested section.
func flattenYAML(data []byte) (map[string]string, error) {
	type section struct {
		path   string
		indent int
	}

	values := make(map[string]string)
	var open []section

	for n, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") {
			return nil, fmt.Errorf("%w: line %d: lists are not supported", ErrInvalidYAML, n+1)
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing colon", ErrInvalidYAML, n+1)
		}

		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		for len(open) > 0 && open[len(open)-1].indent >= indent {
			open = open[:len(open)-1]
		}

		path := strings.TrimSpace(key)
		if len(open) > 0 {
			path = open[len(open)-1].path + "." + path
		}

		value = strings.TrimSpace(value)
		if value == "" {
			open = append(open, section{path: path, indent: indent})
			continue
		}
		values[path] = unquote(value)
	}
	return values, nil
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// setters parse a scalar into the setting at a dotted path. The keys match
// the paths of Fields.
var setters = map[string]func(c *Config, v string) error{
	"storage.dataDir":                 setString(func(c *Config) *string { return &c.Storage.DataDir }),
	"storage.tempDir":                 setString(func(c *Config) *string { return &c.Storage.TempDir }),
	"storage.initialFileSize":         setString(func(c *Config) *string { return &c.Storage.InitialFileSize }),
	"storage.writeTransactionTimeout": setDuration(func(c *Config) *time.Duration { return &c.Storage.WriteTransactionTimeout }),
	"storage.flushInterval":           setDuration(func(c *Config) *time.Duration { return &c.Storage.FlushInterval }),
	"storage.flushThresholdPages":     setInt(func(c *Config) *int { return &c.Storage.FlushThresholdPages }),
	"storage.manualFlush":             setBool(func(c *Config) *bool { return &c.Storage.ManualFlush }),
	"journal.dir":                     setString(func(c *Config) *string { return &c.Journal.Dir }),
	"journal.maxFileSize":             setString(func(c *Config) *string { return &c.Journal.MaxFileSize }),
	"journal.sync":                    setBool(func(c *Config) *bool { return &c.Journal.Sync }),
	"journal.encryptionKeyFile":       setString(func(c *Config) *string { return &c.Journal.EncryptionKeyFile }),
	"memory.maxPooledSize":            setString(func(c *Config) *string { return &c.Memory.MaxPooledSize }),
	"memory.lowMemoryThreshold":       setString(func(c *Config) *string { return &c.Memory.LowMemoryThreshold }),
	"memory.monitorInterval":          setDuration(func(c *Config) *time.Duration { return &c.Memory.MonitorInterval }),
	"logging.level":                   setString(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format":                  setString(func(c *Config) *string { return &c.Logging.Format }),
	"logging.output":                  setString(func(c *Config) *string { return &c.Logging.Output }),
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setDuration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ErrInvalidNumber
		}
		*field(c) = n
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = parseBool(v)
		return nil
	}
}

// parseDuration parses a duration like "30s", "5m" or "250ms". A "d" suffix
// counts whole days.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, ErrInvalidDuration
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, ErrInvalidDuration
	}
	return dur, nil
}

// parseSize parses a byte size like "64MB", "16MiB" or "4096".
// An empty string is zero.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil || n > 1<<62 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return int64(n), nil
}

// parseBool parses a boolean string.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1" || s == "on"
}
