// Package statepaths resolves the on-disk locations of the bot's persistent
// state from configuration.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const defaultStateDir = "~/.lydia"

// StateDir is the root directory for all persistent state.
func StateDir() string {
	dir := strings.TrimSpace(viper.GetString("file_state_dir"))
	if dir == "" {
		dir = defaultStateDir
	}
	return filepath.Clean(ExpandHomePath(dir))
}

// ClientsDir is where the client registry keeps its per-chat records.
func ClientsDir() string {
	dir := strings.TrimSpace(viper.GetString("clients.dir"))
	if dir != "" {
		return filepath.Clean(ExpandHomePath(dir))
	}
	return filepath.Join(StateDir(), "clients")
}

// ExpandHomePath replaces a leading ~ with the user's home directory.
func ExpandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
