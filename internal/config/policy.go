package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MinAllowedPort = 1024
	MaxAllowedPort = 65535

	// DefaultManagerPort is where the download manager listens for hand-offs.
	DefaultManagerPort = 15151
)

// Policy is the user facing capture configuration. Decisions always read the
// latest snapshot from a Holder; a Policy value is never mutated once shared.
type Policy struct {
	AutoCaptureLinks         bool     `yaml:"auto_capture_links" json:"auto_capture_links"`
	PopupEnabled             bool     `yaml:"popup_enabled" json:"popup_enabled"`
	Port                     int      `yaml:"port" json:"port"`
	SendHeaders              bool     `yaml:"send_headers" json:"send_headers"`
	RegisteredFileTypes      []string `yaml:"registered_file_types" json:"registered_file_types"`
	BlacklistedURLs          []string `yaml:"blacklisted_urls" json:"blacklisted_urls"`
	AllowPassOnNoResponse    bool     `yaml:"allow_pass_on_no_response" json:"allow_pass_on_no_response"`
	CloseNewTabIfCaptured    bool     `yaml:"close_new_tab_if_captured" json:"close_new_tab_if_captured"`
	SilentAddDownload        bool     `yaml:"silent_add_download" json:"silent_add_download"`
	SilentStartDownload      bool     `yaml:"silent_start_download" json:"silent_start_download"`
	CaptureFileSizeMinimumKB int      `yaml:"capture_file_size_minimum_kb" json:"capture_file_size_minimum_kb"`
	Shortcut                 string   `yaml:"shortcut" json:"shortcut"`
}

// DefaultPolicy returns a fresh copy of the built-in defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		AutoCaptureLinks: true,
		PopupEnabled:     true,
		Port:             DefaultManagerPort,
		SendHeaders:      true,
		RegisteredFileTypes: []string{
			"zip", "rar", "7z", "iso", "tar", "gz",
			"exe", "msi", "deb", "jar", "apk", "bin",
			"mp3", "aac",
			"pdf",
			"mp4", "3gp", "avi", "mkv", "wav", "mpeg",
			"srt",
		},
		BlacklistedURLs:       []string{},
		AllowPassOnNoResponse: true,
		CloseNewTabIfCaptured: true,
		Shortcut:              "Control",
	}
}

// Validate checks value ranges and normalizes list entries in place.
func (p *Policy) Validate() error {
	if p.Port < MinAllowedPort || p.Port > MaxAllowedPort {
		return fmt.Errorf("policy: port %d out of range [%d, %d]", p.Port, MinAllowedPort, MaxAllowedPort)
	}
	if p.CaptureFileSizeMinimumKB < 0 {
		return fmt.Errorf("policy: capture_file_size_minimum_kb must not be negative")
	}
	exts := make([]string, 0, len(p.RegisteredFileTypes))
	for _, ext := range p.RegisteredFileTypes {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	p.RegisteredFileTypes = exts

	patterns := make([]string, 0, len(p.BlacklistedURLs))
	for _, pat := range p.BlacklistedURLs {
		if pat = strings.TrimSpace(pat); pat != "" {
			patterns = append(patterns, pat)
		}
	}
	p.BlacklistedURLs = patterns
	p.Shortcut = strings.TrimSpace(p.Shortcut)
	return nil
}

// Clone returns a deep copy so callers can edit without touching a shared
// snapshot.
func (p *Policy) Clone() *Policy {
	cp := *p
	cp.RegisteredFileTypes = append([]string(nil), p.RegisteredFileTypes...)
	cp.BlacklistedURLs = append([]string(nil), p.BlacklistedURLs...)
	return &cp
}

// LoadPolicy reads a YAML policy over the defaults. A missing file yields the
// defaults; a malformed one is an error.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("policy: %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePolicy writes p to path as YAML.
func SavePolicy(path string, p *Policy) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("policy: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}
