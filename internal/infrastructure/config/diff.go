package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Diff reports the keys whose values changed between two configs, one
// "section.key: old -> new" line each. An empty string means no change.
func Diff(old, new *Config) string {
	a := flatten(old)
	b := flatten(new)

	keys := map[string]struct{}{}
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	var changed []string
	for k := range keys {
		if a[k] != b[k] {
			changed = append(changed, fmt.Sprintf("%s: %v -> %v", k, a[k], b[k]))
		}
	}
	sort.Strings(changed)
	return strings.Join(changed, "\n")
}

// flatten round-trips the config through TOML into dotted leaf keys.
func flatten(cfg *Config) map[string]string {
	out := map[string]string{}
	if cfg == nil {
		return out
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return out
	}
	var tree map[string]interface{}
	if _, err := toml.Decode(buf.String(), &tree); err != nil {
		return out
	}
	walk("", tree, out)
	return out
}

func walk(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			walk(key, sub, out)
			continue
		}
		out[key] = fmt.Sprintf("%v", v)
	}
}
