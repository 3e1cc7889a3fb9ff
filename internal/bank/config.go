// Package bank tags a statement with its issuing bank.
package bank

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is one configured issuer.
type Profile struct {
	Key         string   `yaml:"-"`
	DisplayName string   `yaml:"display_name"`
	Identifiers []string `yaml:"identifiers"`
}

// Config holds bank profiles in file order. It is read once at startup and
// never mutated.
type Config struct {
	Banks []Profile
}

// LoadConfig reads the bank profile mapping from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse bank config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a mapping of bank key to profile. The node API is used
// so the mapping keeps document order.
func ParseConfig(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if len(root.Content) == 0 {
		return cfg, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of bank keys, got line %d", doc.Line)
	}
	seen := make(map[string]bool, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := strings.TrimSpace(doc.Content[i].Value)
		if key == "" {
			return nil, fmt.Errorf("empty bank key at line %d", doc.Content[i].Line)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate bank key %q", key)
		}
		seen[key] = true

		p := Profile{}
		if val := doc.Content[i+1]; val.Kind != yaml.ScalarNode || val.Tag != "!!null" {
			if err := val.Decode(&p); err != nil {
				return nil, fmt.Errorf("bank %q: %w", key, err)
			}
		}
		p.Key = key
		cfg.Banks = append(cfg.Banks, p)
	}
	return cfg, nil
}

// Profile returns the configured profile for key.
func (c *Config) Profile(key string) (Profile, bool) {
	if c == nil {
		return Profile{}, false
	}
	for _, p := range c.Banks {
		if p.Key == key {
			return p, true
		}
	}
	return Profile{}, false
}
