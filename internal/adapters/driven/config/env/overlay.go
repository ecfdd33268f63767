// Package env layers BILGI_* environment variables over another
// configuration store.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/config"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Prefix is prepended to derived variable names.
const Prefix = "BILGI_"

// Ensure Overlay implements the interface.
var _ driven.ConfigStore = (*Overlay)(nil)

// aliases are variable names kept from earlier deployments.
// They are consulted after the derived name.
var aliases = map[string][]string{
	"store.path":         {"BILGI_VECTOR_STORE_PATH"},
	"ingest.image_dir":   {"BILGI_IMAGE_DIR"},
	"embedding.api_key":  {"OPENAI_API_KEY"},
	"web.google_api_key": {"GOOGLE_API_KEY"},
	"web.google_cx":      {"GOOGLE_CSE_ID"},
}

// Overlay reads BILGI_* variables first and the base store second.
// Writes go to the base store only.
type Overlay struct {
	base   driven.ConfigStore
	lookup func(string) (string, bool)
}

// New wraps base with the process environment.
func New(base driven.ConfigStore) *Overlay {
	return &Overlay{base: base, lookup: os.LookupEnv}
}

// NewWithLookup wraps base with a custom variable source.
func NewWithLookup(base driven.ConfigStore, lookup func(string) (string, bool)) *Overlay {
	return &Overlay{base: base, lookup: lookup}
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables that are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// VarName returns the environment variable that overrides key.
// "embedding.model" becomes BILGI_EMBEDDING_MODEL.
func VarName(key string) string {
	return Prefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Source reports which variable, if any, currently overrides key.
func (o *Overlay) Source(key string) (string, bool) {
	names := append([]string{VarName(key)}, aliases[key]...)
	for _, name := range names {
		if v, ok := o.lookup(name); ok && v != "" {
			return name, true
		}
	}
	return "", false
}

// Get returns the environment value for key when set, else the base value.
func (o *Overlay) Get(key string) (any, bool) {
	if name, ok := o.Source(key); ok {
		v, _ := o.lookup(name)
		return v, true
	}
	return o.base.Get(key)
}

// GetString retrieves a string configuration value.
func (o *Overlay) GetString(key string) string {
	v, _ := o.Get(key)
	return config.String(v)
}

// GetInt retrieves an integer configuration value.
func (o *Overlay) GetInt(key string) int {
	v, _ := o.Get(key)
	return config.Int(v)
}

// GetFloat retrieves a floating point configuration value.
func (o *Overlay) GetFloat(key string) float64 {
	v, _ := o.Get(key)
	return config.Float(v)
}

// GetBool retrieves a boolean configuration value.
func (o *Overlay) GetBool(key string) bool {
	v, _ := o.Get(key)
	return config.Bool(v)
}

// GetStringSlice retrieves a string slice configuration value.
func (o *Overlay) GetStringSlice(key string) []string {
	v, _ := o.Get(key)
	return config.StringSlice(v)
}

// Set writes to the base store. An environment override still shadows it.
func (o *Overlay) Set(key string, value any) error { return o.base.Set(key, value) }

// Save persists the base store.
func (o *Overlay) Save() error { return o.base.Save() }

// Load reloads the base store.
func (o *Overlay) Load() error { return o.base.Load() }

// Path returns the base store path.
func (o *Overlay) Path() string { return o.base.Path() }
