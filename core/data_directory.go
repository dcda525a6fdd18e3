package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is used for the per-user data directory.
const AppName = "sdgateway"

// GetDataDirectory returns the per-user data directory without creating it:
// %APPDATA%\sdgateway on Windows, ~/.sdgateway elsewhere.
func GetDataDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return AppName
		}
		return filepath.Join(home, "AppData", "Roaming", AppName)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "." + AppName
		}
		return filepath.Join(home, "."+AppName)
	}
}

// GetDataFilePath joins filename onto the data directory.
func GetDataFilePath(filename string) string {
	return filepath.Join(GetDataDirectory(), filename)
}

// EnsureDataDirectory creates the data directory (0700) if needed.
func EnsureDataDirectory() (string, error) {
	dir := GetDataDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
