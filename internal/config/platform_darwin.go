//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultsDomain = "com.callcoach.app"

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "callcoach")
	}
	return "callcoach-data"
}

func platformStores() (Backend, SecretStore) {
	return defaultsBackend(defaultsDomain), keychainStore(secretService)
}

// defaultsBackend reads and writes a UserDefaults domain via defaults(1).
type defaultsBackend string

func (d defaultsBackend) Get(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", string(d), key).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s: %w, output: %s", key, err, s)
	}
	return s, true, nil
}

func (d defaultsBackend) Set(key, val string) error {
	return exec.Command("defaults", "write", string(d), key, "-string", val).Run()
}

func (d defaultsBackend) Delete(key string) error {
	return exec.Command("defaults", "delete", string(d), key).Run()
}

// keychainStore uses generic passwords in the login keychain via security(1).
type keychainStore string

func (k keychainStore) Get(account string) (string, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", string(k), "-a", account, "-w").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (k keychainStore) Set(account, val string) error {
	return exec.Command("security", "add-generic-password", "-U", "-s", string(k), "-a", account, "-w", val).Run()
}

func (k keychainStore) Location(account string) string {
	return fmt.Sprintf("macOS Keychain (service: %s, account: %s)", string(k), account)
}
