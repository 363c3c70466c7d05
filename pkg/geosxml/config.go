package geosxml

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all configuration options for the preprocessor
type Config struct {
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string `yaml:"log_level"`
	// MaxIncludeDepth bounds how deeply <Included> files may nest
	MaxIncludeDepth int `yaml:"max_include_depth"`
	// MaxParameterDepth bounds how deeply parameter values may reference other parameters
	MaxParameterDepth int `yaml:"max_parameter_depth"`
	// ExpressionOpen and ExpressionClose delimit expressions inside attribute values
	ExpressionOpen  string `yaml:"expression_open"`
	ExpressionClose string `yaml:"expression_close"`
	// AllowedFunctions restricts the built-in math functions. Empty means all of them.
	AllowedFunctions []string `yaml:"allowed_functions"`
	// Precision is the number of significant digits used to format expression results
	Precision int `yaml:"precision"`
	// ConvertUnitLiterals converts bracketed unit literals outside expressions, e.g. "1.5[ft]"
	ConvertUnitLiterals bool `yaml:"convert_unit_literals"`
	// CacheMaxSize is the maximum number of parsed include files to cache. 0 disables caching.
	CacheMaxSize int `yaml:"cache_max_size"`
	// CacheTTL is the time-to-live for cached files. 0 means no expiration.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Indent is used when writing the flattened document
	Indent string `yaml:"indent"`
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	// Initialize global config from environment on first use
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		MaxIncludeDepth:   32,
		MaxParameterDepth: 16,
		ExpressionOpen:    "`",
		ExpressionClose:   "`",
		Precision:         15,
		CacheMaxSize:      64,
		CacheTTL:          0,
		Indent:            "  ",
	}
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	// GEOSXML_LOG_LEVEL
	if val := os.Getenv("GEOSXML_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	// GEOSXML_MAX_INCLUDE_DEPTH
	if val := os.Getenv("GEOSXML_MAX_INCLUDE_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			config.MaxIncludeDepth = depth
		}
	}

	// GEOSXML_MAX_PARAMETER_DEPTH
	if val := os.Getenv("GEOSXML_MAX_PARAMETER_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			config.MaxParameterDepth = depth
		}
	}

	// GEOSXML_PRECISION
	if val := os.Getenv("GEOSXML_PRECISION"); val != "" {
		if precision, err := strconv.Atoi(val); err == nil {
			config.Precision = precision
		}
	}

	// GEOSXML_CACHE_MAX_SIZE
	if val := os.Getenv("GEOSXML_CACHE_MAX_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	// GEOSXML_CACHE_TTL
	if val := os.Getenv("GEOSXML_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = duration
		}
	}

	// GEOSXML_CONVERT_UNITS
	if val := os.Getenv("GEOSXML_CONVERT_UNITS"); val != "" {
		config.ConvertUnitLiterals = parseBool(val)
	}

	return config
}

// LoadConfigFile reads a YAML configuration file. Keys absent from the file keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("read config", path, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewDocumentError("parse config", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.MaxIncludeDepth == 0 {
		config.MaxIncludeDepth = defaults.MaxIncludeDepth
	}
	if config.MaxParameterDepth == 0 {
		config.MaxParameterDepth = defaults.MaxParameterDepth
	}
	if config.ExpressionOpen == "" {
		config.ExpressionOpen = defaults.ExpressionOpen
	}
	if config.ExpressionClose == "" {
		config.ExpressionClose = defaults.ExpressionClose
	}
	if config.Precision == 0 {
		config.Precision = defaults.Precision
	}
	if config.Indent == "" {
		config.Indent = defaults.Indent
	}

	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}
	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if c.MaxIncludeDepth <= 0 {
		return errors.New("max include depth must be positive")
	}

	if c.MaxParameterDepth <= 0 {
		return errors.New("max parameter depth must be positive")
	}

	if c.ExpressionOpen == "" || c.ExpressionClose == "" {
		return errors.New("expression delimiters cannot be empty")
	}

	if strings.ContainsAny(c.ExpressionOpen+c.ExpressionClose, "$") {
		return errors.New("expression delimiters cannot contain '$'")
	}

	if c.Precision < 1 || c.Precision > 17 {
		return errors.New("precision must be between 1 and 17")
	}

	if c.CacheMaxSize < 0 {
		return errors.New("cache max size cannot be negative")
	}

	if c.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	registry := GetDefaultFunctionRegistry()
	for _, name := range c.AllowedFunctions {
		if _, ok := registry.GetFunction(name); !ok {
			return fmt.Errorf("unknown function in allow-list: %s", name)
		}
	}

	return nil
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	// Return a copy to prevent modification
	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// Update logger based on new config (outside the lock to avoid deadlock)
	UpdateLoggerFromConfig()
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
