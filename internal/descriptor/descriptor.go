// Package descriptor parses the gateway's configuration descriptor: process
// settings (admin socket, log level, HTTP observability surface) plus an
// ordered sequence of (module_path, module_config) entries, loaded through
// viper so a config file, environment variables, and built-in defaults all
// layer together.
package descriptor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	"github.com/kartikbazzad/edgegateway/internal/gateway"
	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
)

// ModuleEntry is the on-disk shape of one descriptor entry before its
// Config is narrowed to json.RawMessage.
type ModuleEntry struct {
	Path   string                 `mapstructure:"path" json:"path"`
	Schema string                 `mapstructure:"schema" json:"schema,omitempty"`
	Config map[string]interface{} `mapstructure:"config" json:"config"`
}

// Descriptor is the full ordered gateway configuration: the admin/logging/
// HTTP observability surface plus the ordered module list.
type Descriptor struct {
	AdminSocket     string        `mapstructure:"admin_socket"`
	LogLevel        string        `mapstructure:"log_level"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	HTTPEnabled     bool          `mapstructure:"http_enabled"`
	HTTPReadTimeout time.Duration `mapstructure:"http_read_timeout"`
	Modules         []ModuleEntry `mapstructure:"modules"`
}

// Default returns a Descriptor with baseline defaults: an admin socket
// under /tmp, info-level logging, no modules.
func Default() *Descriptor {
	return &Descriptor{
		AdminSocket:     "/tmp/edgegateway-admin.sock",
		LogLevel:        "info",
		HTTPAddr:        ":8081",
		HTTPEnabled:     true,
		HTTPReadTimeout: 10 * time.Second,
		Modules:         nil,
	}
}

// Load reads a descriptor from path (any format viper supports - YAML,
// JSON, TOML) layered over Default's values, with EDGEGATEWAY_-prefixed
// environment variable overrides.
func Load(path string) (*Descriptor, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("admin_socket", d.AdminSocket)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("http_enabled", d.HTTPEnabled)
	v.SetDefault("http_read_timeout", d.HTTPReadTimeout)
	v.SetEnvPrefix("EDGEGATEWAY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("descriptor load %s: %w", path, err)
		}
	}

	var out Descriptor
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("descriptor load %s: unmarshal: %w", path, err)
	}
	return &out, nil
}

// ToGatewayEntries converts the descriptor's module list into the ordered
// (module_path, module_config) sequence gateway.Create consumes, validating
// each entry's config against its declared JSON schema, if any, before the
// Gateway ever attempts to load that module.
func (d *Descriptor) ToGatewayEntries() ([]gateway.Entry, error) {
	entries := make([]gateway.Entry, 0, len(d.Modules))
	for _, m := range d.Modules {
		raw, err := json.Marshal(m.Config)
		if err != nil {
			return nil, fmt.Errorf("descriptor marshal config for %s: %w", m.Path, err)
		}

		if m.Schema != "" {
			if err := validateAgainstSchema(m.Schema, raw); err != nil {
				return nil, fmt.Errorf("descriptor validate %s: %w: %v", m.Path, gwerrors.ErrInvalidArg, err)
			}
		}

		entries = append(entries, gateway.Entry{ModulePath: m.Path, Config: raw})
	}
	return entries, nil
}

func validateAgainstSchema(schemaPath string, config json.RawMessage) error {
	schemaLoader := gojsonschema.NewReferenceLoader("file://" + schemaPath)
	docLoader := gojsonschema.NewBytesLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("config does not satisfy schema %s: %v", schemaPath, result.Errors())
	}
	return nil
}
