package config

import (
	"path/filepath"
	"strings"
)

const sqliteMemory = ":memory:"

// anchorPaths resolves relative runtime paths against the directory of the
// config file. Configs built with Parse alone stay relative to the working
// directory.
func (c *AppConfig) anchorPaths(baseDir string) {
	c.baseDir = baseDir
	db := c.Database
	if db.Driver == DriverSQLite && db.DSN == "" && db.URL == "" && isSQLiteFile(db.Path) {
		c.Database.Path = anchor(baseDir, db.Path)
		c.DSN = c.Database.DSNValue()
	}
}

// LogDir returns the directory for daily log files.
func (c *AppConfig) LogDir() string {
	if c == nil {
		return filepath.Join(".", "logs")
	}
	return anchor(c.baseDir, firstNonEmpty(c.Paths.Logs, "logs"))
}

func isSQLiteFile(path string) bool {
	return path != "" && path != sqliteMemory && !strings.HasPrefix(path, "file:")
}

func anchor(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}
