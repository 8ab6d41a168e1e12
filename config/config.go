// Package config provides application level configuration for curator. Values
// are loaded from defaults, an optional `curator.yaml` found in the working
// directory or any parent, and environment variables with a `CUR__` prefix —
// later sources override earlier ones.
//
// Environment variable transformation:
//   - CUR__PERM__MAX_TRAVERSAL_DEPTH → perm.maxTraversalDepth
//   - CUR__LOGGING__DEVELOPMENT → logging.development
package config

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Filename of the standard configuration file.
const ConfigFile = "curator.yaml"

// Configuration keys.
const (
	// Maximum depth for the ancestor walk in the permission engine. The
	// collection hierarchy is expected to be shallow; the cap exists to bound
	// traversal over malformed or cyclic item edges.
	KeyMaxTraversalDepth = "perm.maxTraversalDepth"

	// Whether to emit dev-friendly console logs instead of JSON.
	KeyLoggingDevelopment = "logging.development"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		KeyMaxTraversalDepth:  50,
		KeyLoggingDevelopment: false,
	}
}

// New returns a koanf instance populated from defaults, an auto-discovered
// curator.yaml, and CUR__ environment variables.
func New() (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, err
	}

	if cfg := searchForConfig(ConfigFile, "."); cfg != "" {
		if err := k.Load(file.Provider(cfg), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("CUR__", ".", transformEnv), nil); err != nil {
		return nil, err
	}

	return k, nil
}

// MustNew is like New but panics on load errors. Configuration problems are
// not recoverable at startup.
func MustNew() *koanf.Koanf {
	k, err := New()
	if err != nil {
		panic("error loading config: " + err.Error())
	}
	return k
}

// searchForConfig recursively searches for a config file starting from
// startDir and walking up the directory tree until found or reaching the root.
func searchForConfig(filename string, startDir string) string {
	d, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	p := filepath.Join(d, filename)
	if _, err = os.Stat(p); err == nil {
		return p
	}

	parentDir := filepath.Dir(d)
	if parentDir == d {
		return ""
	}
	return searchForConfig(filename, parentDir)
}

// transformEnv converts CUR__PERM__MAX_TRAVERSAL_DEPTH to
// perm.maxTraversalDepth. Double underscores become dots, single underscores
// within a segment become camelCase.
func transformEnv(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "CUR__"))
	segments := strings.Split(s, "__")
	for i, segment := range segments {
		parts := strings.Split(segment, "_")
		for j := 1; j < len(parts); j++ {
			parts[j] = capitalize(parts[j])
		}
		segments[i] = strings.Join(parts, "")
	}
	return strings.Join(segments, ".")
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
