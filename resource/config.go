package resource

import (
	"fmt"
	"maps"
	"sort"
)

// Config is the persistable description of a resource. Values are restricted to
// what survives a YAML, JSON or protobuf Struct round trip: nil, bool, numbers,
// string, []any and map[string]any.
type Config map[string]any

// Type returns the resource type, eg: "env".
func (c Config) Type() string {
	return c.String(KeyType)
}

// Name returns the resource name, or an empty string.
func (c Config) Name() string {
	return c.String(KeyName)
}

// String returns the string value for key, or an empty string if unset or not a string.
func (c Config) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Bool returns the boolean value for key.
func (c Config) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

// Strings returns a []string from a list value, as decoded from any supported format.
func (c Config) Strings(key string) ([]string, error) {
	switch value := c[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return value, nil
	case []any:
		strs := make([]string, len(value))
		for i, v := range value {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", key, i, v)
			}
			strs[i] = s
		}
		return strs, nil
	default:
		return nil, fmt.Errorf("%s: expected list of strings, got %T", key, value)
	}
}

// StringMap returns a map[string]string from a mapping value.
func (c Config) StringMap(key string) (map[string]string, error) {
	switch value := c[key].(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return value, nil
	case map[string]any:
		m := make(map[string]string, len(value))
		for k, v := range value {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s.%s: expected string, got %T", key, k, v)
			}
			m[k] = s
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%s: expected mapping of strings, got %T", key, value)
	}
}

// Without returns a shallow copy of the config, without the given keys.
func (c Config) Without(keys ...string) Config {
	config := maps.Clone(c)
	for _, key := range keys {
		delete(config, key)
	}
	return config
}

// Keys returns the sorted config keys.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
