package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "qrharvest"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "QRHARVEST"
)

// Loader merges defaults, a config file, QRHARVEST_* environment variables
// and bound flags into a Config. Later sources win.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings are visible to it.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on an isolated viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// Load reads configuration from the search paths, environment variables and
// defaults, then validates it. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	return validated(l.LoadWithoutValidation())
}

// LoadWithoutValidation is Load without the validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
	if err := l.prepare(); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	return validated(l.LoadWithFileWithoutValidation(configFile))
}

// LoadWithFileWithoutValidation is LoadWithFile without the validation step.
// The file format follows its extension (yaml, json, toml).
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile == "" {
		return l.LoadWithoutValidation()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	if err := l.prepare(); err != nil {
		return nil, err
	}
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return l.unmarshal()
}

// ConfigFileUsed returns the path of the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// PrintConfigInfo writes where configuration is read from to w.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	used := l.ConfigFileUsed()
	if used == "" {
		used = "(none, using defaults)"
	}
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", used)
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}

// prepare registers the environment mapping and every default. Keys like
// output.crop_format map to QRHARVEST_OUTPUT_CROP_FORMAT.
func (l *Loader) prepare() error {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()

	defaults, err := DefaultSettings()
	if err != nil {
		return err
	}
	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
	return nil
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func validated(cfg *Config, err error) (*Config, error) {
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultSettings flattens DefaultConfig into dotted keys such as
// "server.port". Every key is registered, including empty ones, so
// environment variables are honored for all of them.
func DefaultSettings() (map[string]any, error) {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	out := make(map[string]any)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, tree map[string]any, out map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// SettingKeys returns every configuration key in sorted order.
func SettingKeys() []string {
	defaults, err := DefaultSettings()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GenerateDefaultConfigFile writes a YAML config file holding every default.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	cfg := DefaultConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	header := []byte("# qrharvest configuration. Every key can also be set with a\n" +
		"# " + EnvPrefix + "_<SECTION>_<KEY> environment variable.\n")
	return os.WriteFile(filename, append(header, data...), 0o644) //nolint:gosec // G306: config files are not secret
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}
	return append(paths, filepath.Join("/etc", ConfigFileName))
}
