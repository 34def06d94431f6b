//go:build !darwin

package config

import "path/filepath"

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "callcoach")
}

// platformStores returns $XDG_CONFIG_HOME/callcoach/config.json and
// $XDG_DATA_HOME/callcoach/secrets.json.
func platformStores() (Backend, SecretStore) {
	cfgPath := filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "callcoach", "config.json")
	secPath := filepath.Join(defaultDataDir(), "secrets.json")
	return newFileBackend(cfgPath), fileSecrets{file: jsonFile(secPath)}
}
