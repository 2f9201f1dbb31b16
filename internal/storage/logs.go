package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogStorage manages saving step logs to files.
type LogStorage struct {
	BaseDir string
}

// NewLogStorage creates a new log storage handler.
func NewLogStorage(baseDir string) *LogStorage {
	return &LogStorage{BaseDir: baseDir}
}

// SaveLog saves the output for a given variant/step under the base
// directory, one subdirectory per variant.
func (ls *LogStorage) SaveLog(variant, step, output string) (string, error) {
	dir := filepath.Join(ls.BaseDir, Sanitize(variant))
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return "", err
	}

	// Timestamped filename for uniqueness across repeated steps.
	timestamp := time.Now().Format("20060102_150405.000")
	filename := fmt.Sprintf("%s_%s.log", Sanitize(step), timestamp)
	filePath := filepath.Join(dir, filename)

	if err := os.WriteFile(filePath, []byte(output), 0o644); err != nil {
		return "", err
	}
	return filePath, nil
}

// Sanitize strips characters that would be awkward in file names.
func Sanitize(name string) string {
	clean := ""
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			clean += string(r)
		}
	}
	if clean == "" {
		return "step"
	}
	return clean
}
