package evmvc

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the set of server-wide, mapstructure-decodable configuration
// fields, grounded on the teacher's Air struct (air.go), which holds its
// ~40 knobs the same way and loads them from a config file via
// mapstructure.Decode over a toml/yaml/json-unmarshaled generic map.
type Config struct {
	AppName   string `mapstructure:"app_name"`
	DebugMode bool   `mapstructure:"debug_mode"`

	Address                string        `mapstructure:"address"`
	ReadTimeout            time.Duration `mapstructure:"read_timeout"`
	WriteTimeout           time.Duration `mapstructure:"write_timeout"`
	IdleTimeout            time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes         int           `mapstructure:"max_header_bytes"`

	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`

	// ReactorPoolSize is the number of loopReactors shared across every
	// accepted connection (§5's "fan-out is process-level" rule): each
	// connection's state stays single-threaded on whichever reactor it is
	// bound to, but the count of reactor loop goroutines is fixed at
	// process startup rather than growing one-per-connection.
	ReactorPoolSize int `mapstructure:"reactor_pool_size"`

	PROXYEnabled           bool          `mapstructure:"proxy_enabled"`
	PROXYRelayerIPWhitelist []string     `mapstructure:"proxy_relayer_ip_whitelist"`
	PROXYReadHeaderTimeout time.Duration `mapstructure:"proxy_read_header_timeout"`

	GzipEnabled       bool `mapstructure:"gzip_enabled"`
	GzipMinLength     int  `mapstructure:"gzip_min_length"`
	MinifierEnabled   bool `mapstructure:"minifier_enabled"`
	CofferEnabled     bool `mapstructure:"coffer_enabled"`
	CofferMaxMemoryBytes int `mapstructure:"coffer_max_memory_bytes"`
	AssetRoot         string `mapstructure:"asset_root"`

	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig returns a Config with the teacher's Air-equivalent
// defaults (air.go's New()): localhost:8080, a JSON-shaped default log
// line format, and a modest in-memory asset cache.
func DefaultConfig() *Config {
	return &Config{
		AppName:              "evmvc",
		Address:              "localhost:8080",
		MaxHeaderBytes:       1 << 20,
		ReactorPoolSize:      runtime.NumCPU(),
		PROXYReadHeaderTimeout: 5 * time.Second,
		GzipMinLength:        1024,
		CofferMaxMemoryBytes: 32 << 20,
		AssetRoot:            "assets",
		LogFormat: `{"app_name":"{{.app_name}}","time":"{{.time_rfc3339}}",` +
			`"level":"{{.level}}","file":"{{.short_file}}","line":"{{.line}}"}`,
	}
}

// LoadConfig reads path into a generic map and mapstructure-decodes it
// onto a DefaultConfig, in the style of the teacher's Air.Serve
// config-file loading (air.go). A ".toml" path is decoded as TOML and a
// ".yaml"/".yml" path as YAML; any other path, ".json" included, is tried
// as TOML and then as YAML, which also accepts JSON.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("evmvc: reading config file: %w", err)
	}

	generic := map[string]interface{}{}
	switch {
	case strings.HasSuffix(path, ".toml"):
		if err := toml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("evmvc: parsing toml config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("evmvc: parsing yaml config: %w", err)
		}
	default:
		if err := tomlOrJSON(raw, &generic); err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("evmvc: decoding config: %w", err)
	}

	return cfg, nil
}

func tomlOrJSON(raw []byte, out *map[string]interface{}) error {
	if err := toml.Unmarshal(raw, out); err == nil {
		return nil
	}
	return yaml.Unmarshal(raw, out)
}
