// Package config defines the programmatic entry options for a replx
// run and their validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects how a run treats the filesystem.
type Mode string

const (
	ModeDryRun      Mode = "dry_run"
	ModeForce       Mode = "force"
	ModeInteractive Mode = "interactive"
	ModeResume      Mode = "resume"
)

// DefaultJournalName is the journal file created in the scan root.
const DefaultJournalName = "planned_transactions.json"

// DefaultMaxScanBytes caps content scanning; larger files get
// name-only treatment.
const DefaultMaxScanBytes = 5 * 1024 * 1024

// DefaultTextExtensions is the content allow-list used when the
// operator supplies none.
var DefaultTextExtensions = []string{
	".txt", ".md", ".rst", ".csv", ".tsv", ".log",
	".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf",
	".xml", ".html", ".htm", ".css", ".js", ".ts",
	".go", ".py", ".rb", ".rs", ".java", ".c", ".h", ".cpp", ".hpp",
	".sh", ".bash", ".zsh", ".ps1", ".bat",
	".sql", ".proto", ".env", ".properties", ".rtf",
}

// DefaultExcludedDirs are skipped during traversal unless the
// operator overrides the set.
var DefaultExcludedDirs = []string{
	".git", ".hg", ".svn", "node_modules", "vendor", "__pycache__",
	".idea", ".vscode", "dist", "build",
}

// Config is the operator-facing option struct (consumed by the core;
// produced by the CLI or by embedding callers).
type Config struct {
	ScanRoot    string
	MappingPath string
	Mode        Mode

	JournalPath string
	SkipScan    bool

	ExcludedDirs     []string
	Extensions       []string
	IncludeGlobs     []string
	ExcludeGlobs     []string
	UseGitignore     bool
	CustomIgnorePath string

	IgnoreSymlinks      bool
	ProcessSymlinkNames bool

	SkipFileRenaming   bool
	SkipFolderRenaming bool
	SkipContent        bool

	TimeoutMinutes int
	MaxScanBytes   int64

	Verbose bool
	Quiet   bool
}

// Validate checks the configuration and fills defaults in place.
func (c *Config) Validate() error {
	if c.ScanRoot == "" {
		return fmt.Errorf("scan_root is required")
	}
	info, err := os.Stat(c.ScanRoot)
	if err != nil {
		return fmt.Errorf("scan_root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan_root %s is not a directory", c.ScanRoot)
	}

	switch c.Mode {
	case ModeDryRun, ModeForce, ModeInteractive, ModeResume:
	case "":
		c.Mode = ModeDryRun
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.Mode != ModeResume && !c.SkipScan && c.MappingPath == "" {
		return fmt.Errorf("mapping_path is required unless resuming")
	}

	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.ScanRoot, DefaultJournalName)
	}
	if c.MaxScanBytes <= 0 {
		c.MaxScanBytes = DefaultMaxScanBytes
	}
	if c.TimeoutMinutes <= 0 {
		c.TimeoutMinutes = 30
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultTextExtensions
	}
	if c.ExcludedDirs == nil {
		c.ExcludedDirs = DefaultExcludedDirs
	}
	return nil
}

// Timeout returns the global deadline duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// ExtensionAllowed reports whether a file's extension participates
// in content scanning.
func (c *Config) ExtensionAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range c.Extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// ExcludedDir reports whether a directory basename is excluded from
// traversal.
func (c *Config) ExcludedDir(base string) bool {
	for _, d := range c.ExcludedDirs {
		if base == d {
			return true
		}
	}
	return false
}
