// Package session manages per-run output directories: the exported script,
// the structured log, and a backup of the configuration that produced them.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Manager owns one session directory
type Manager struct {
	sessionDir string
	logger     *slog.Logger
}

// NewManager creates a session directory under baseDir, or reopens an
// existing one when resumeFrom names it.
func NewManager(baseDir string, resumeFrom string, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var sessionDir string
	if resumeFrom != "" {
		sessionDir = filepath.Join(baseDir, resumeFrom)
		if _, err := os.Stat(sessionDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("session directory not found: %s", sessionDir)
		}
		logger.Info("Reusing existing session", "path", sessionDir)
	} else {
		timestamp := time.Now().Format("2006-01-02T15-04-05")
		sessionDir = filepath.Join(baseDir, "session_"+timestamp)
		if err := os.MkdirAll(sessionDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		logger.Info("Created session directory", "path", sessionDir)
	}

	return &Manager{sessionDir: sessionDir, logger: logger}, nil
}

// Dir returns the session directory path
func (m *Manager) Dir() string {
	return m.sessionDir
}

// ScriptPath returns the full path of the exported script
func (m *Manager) ScriptPath() string {
	return filepath.Join(m.sessionDir, "script.md")
}

// LogPath returns the full path of the session log file
func (m *Manager) LogPath() string {
	return filepath.Join(m.sessionDir, "session.log")
}

// ConfigBackupPath returns the full path of the config backup
func (m *Manager) ConfigBackupPath() string {
	return filepath.Join(m.sessionDir, "config.toml.bak")
}

// WriteScript saves the assembled script text, overwriting any earlier export
// from the same session.
func (m *Manager) WriteScript(text string) error {
	if err := os.WriteFile(m.ScriptPath(), []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	m.logger.Info("Script exported", "path", m.ScriptPath())
	return nil
}

// BackupConfig copies the config file into the session directory so a run can
// always be traced back to the exact settings that produced it.
func (m *Manager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := os.WriteFile(m.ConfigBackupPath(), source, 0o644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}
	return nil
}
