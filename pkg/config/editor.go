package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Editor edits a YAML config file by dotted key, e.g. "api.base-url".
type Editor struct {
	path string
	data map[string]interface{}
}

// NewEditor loads path. A missing file starts out empty and is created by Save.
func NewEditor(path string) (*Editor, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	e := &Editor{path: path, data: map[string]interface{}{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return e, nil
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(b, &e.data); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if e.data == nil {
		e.data = map[string]interface{}{}
	}
	return e, nil
}

func (e *Editor) Path() string { return e.path }

func (e *Editor) Get(key string) (interface{}, error) {
	parts := splitKey(key)
	cur := interface{}(e.data)
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("key %q not found", key)
		}
		cur, ok = m[p]
		if !ok {
			return nil, errors.Errorf("key %q not found", key)
		}
	}
	return cur, nil
}

// Set stores value under key. The value is parsed as a YAML scalar so
// "true", "500" and "0.8" keep their types.
func (e *Editor) Set(key, value string) error {
	parts := splitKey(key)
	if len(parts) == 0 {
		return errors.New("empty key")
	}
	var parsed interface{}
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}
	m := e.data
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = parsed
	return nil
}

func (e *Editor) Delete(key string) error {
	parts := splitKey(key)
	if len(parts) == 0 {
		return errors.New("empty key")
	}
	m := e.data
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			return errors.Errorf("key %q not found", key)
		}
		m = next
	}
	last := parts[len(parts)-1]
	if _, ok := m[last]; !ok {
		return errors.Errorf("key %q not found", key)
	}
	delete(m, last)
	return nil
}

// GetAll returns every leaf value keyed by its dotted path.
func (e *Editor) GetAll() map[string]interface{} {
	out := map[string]interface{}{}
	flatten("", e.data, out)
	return out
}

func (e *Editor) ListKeys() []string {
	all := e.GetAll()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Editor) Save() error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	b, err := yaml.Marshal(e.data)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrapf(os.WriteFile(e.path, b, 0o644), "write %s", e.path)
}

func FormatValue(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case map[string]interface{}, []interface{}:
		b, err := yaml.Marshal(vv)
		if err != nil {
			return fmt.Sprintf("%v", vv)
		}
		return strings.TrimRight(string(b), "\n")
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func splitKey(key string) []string {
	var out []string
	for _, p := range strings.Split(strings.TrimSpace(key), ".") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func flatten(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]interface{}); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}
