package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Backend persists non-secret keys as text. The key table types values on
// read, so a backend never needs to know whether a key is an int or a bool.
type Backend interface {
	Get(key string) (val string, ok bool, err error)
	Set(key, val string) error
	Delete(key string) error
}

// SecretStore holds secret keys, one account per key.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, val string) error
	// Location names where account lives, for error messages.
	Location(account string) string
}

const secretService = "callcoach"

// jsonFile is a flat JSON object on disk. Numbers and bools written by hand
// are read back as their text form.
type jsonFile string

func (f jsonFile) read() (map[string]string, error) {
	data, err := os.ReadFile(string(f))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("parsing %s: %s has unsupported type %T", f, k, v)
		}
	}
	return out, nil
}

func (f jsonFile) write(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(string(f)), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(string(f)), err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(string(f), data, 0o600)
}

func (f jsonFile) update(fn func(map[string]string)) error {
	m, err := f.read()
	if err != nil {
		return err
	}
	fn(m)
	return f.write(m)
}

// fileBackend is the Backend used outside macOS. A broken file is reported
// once and treated as empty so defaults still apply.
type fileBackend struct {
	file jsonFile
	data map[string]string
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{file: jsonFile(path)}
	data, err := b.file.read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		data = map[string]string{}
	}
	b.data = data
	return b
}

func (b *fileBackend) Get(key string) (string, bool, error) {
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *fileBackend) Set(key, val string) error {
	b.data[key] = val
	return b.file.update(func(m map[string]string) { m[key] = val })
}

func (b *fileBackend) Delete(key string) error {
	delete(b.data, key)
	return b.file.update(func(m map[string]string) { delete(m, key) })
}

// fileSecrets keeps secrets in a 0600 JSON file.
type fileSecrets struct {
	file jsonFile
}

func (s fileSecrets) Get(account string) (string, error) {
	m, err := s.file.read()
	if err != nil {
		return "", err
	}
	v, ok := m[account]
	if !ok {
		return "", fmt.Errorf("secret %q not found in %s", account, s.file)
	}
	return v, nil
}

func (s fileSecrets) Set(account, val string) error {
	return s.file.update(func(m map[string]string) { m[account] = val })
}

func (s fileSecrets) Location(account string) string {
	return fmt.Sprintf("%s (%s)", s.file, account)
}

// xdgDir resolves an XDG base directory, falling back to $HOME/<rel...>.
func xdgDir(env string, rel ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, rel...)...)
}
