// Package config provides configuration loading for FINDIT using TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// HTTP fetching settings
type Fetcher struct {
	UserAgent      string `toml:"userAgent"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
	ChromePath     string `toml:"chromePath"`
	UseBrowser     bool   `toml:"useBrowser"` // fetch pages through headless Chrome
}

// Script loading settings
type Scripts struct {
	LoadTimeoutSeconds int    `toml:"loadTimeoutSeconds"`
	OnFailure          string `toml:"onFailure"` // "degrade" or "fallback"
}

// Navigation settings
type Navigation struct {
	LinkSelector        string   `toml:"linkSelector"`
	ContentSelector     string   `toml:"contentSelector"`
	HeaderTitleSelector string   `toml:"headerTitleSelector"`
	SubtitleSelector    string   `toml:"subtitleSelector"`
	InterceptPatterns   []string `toml:"interceptPatterns"`
}

// Session settings
type Session struct {
	Persist bool   `toml:"persist"`
	Path    string `toml:"path"` // empty = ~/.config/findit/session.json
}

// Item store settings
type Items struct {
	Path string `toml:"path"` // empty = ~/.config/findit/items.json
}

// Site server settings
type Server struct {
	Addr     string `toml:"addr"`
	AllowAll bool   `toml:"allowAllOrigins"`
}

// Logging settings
type Logging struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Config is the main configuration struct
type Config struct {
	Fetcher    Fetcher           `toml:"fetcher"`
	Scripts    Scripts           `toml:"scripts"`
	Navigation Navigation        `toml:"navigation"`
	Routes     map[string]string `toml:"routes"` // page basename -> controller family
	Session    Session           `toml:"session"`
	Items      Items             `toml:"items"`
	Server     Server            `toml:"server"`
	Logging    Logging           `toml:"logging"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Fetcher: Fetcher{
			UserAgent:      "FINDIT/1.0 (navigator)",
			TimeoutSeconds: 30,
			ChromePath:     "",
			UseBrowser:     false,
		},
		Scripts: Scripts{
			LoadTimeoutSeconds: 10,
			OnFailure:          "degrade",
		},
		Navigation: Navigation{
			LinkSelector:        ".nav-link",
			ContentSelector:     "main",
			HeaderTitleSelector: ".app-title",
			SubtitleSelector:    ".subtitle",
			InterceptPatterns:   []string{"**/*.html", "**/*.htm"},
		},
		Routes: map[string]string{
			"":               "app",
			"index.html":     "app",
			"profile.html":   "app",
			"dashboard.html": "dashboard",
		},
		Session: Session{
			Persist: true,
		},
		Server: Server{
			Addr: "127.0.0.1:8080",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// configDir returns the configuration directory path.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "findit"), nil
}

// ConfigPath returns the path to the user's config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads configuration, layering user config on top of defaults.
// Returns the default config if no user config exists.
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return Default(), nil // Return defaults if we can't determine path
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, layered on top of defaults. A
// missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	userCfg, md, err := loadFromTOML(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	cfg = merge(cfg, userCfg, md)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// loadFromTOML loads a TOML config file and returns the config.
func loadFromTOML(path string) (*Config, toml.MetaData, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, md, fmt.Errorf("parsing config TOML: %w", err)
	}
	return &cfg, md, nil
}

// merge layers user config on top of defaults.
// Strings and numbers override when non-zero; booleans override when the key
// is present in the file.
func merge(defaults, user *Config, md toml.MetaData) *Config {
	result := *defaults

	// Fetcher
	mergeString(&result.Fetcher.UserAgent, user.Fetcher.UserAgent)
	if user.Fetcher.TimeoutSeconds != 0 {
		result.Fetcher.TimeoutSeconds = user.Fetcher.TimeoutSeconds
	}
	mergeString(&result.Fetcher.ChromePath, user.Fetcher.ChromePath)
	if md.IsDefined("fetcher", "useBrowser") {
		result.Fetcher.UseBrowser = user.Fetcher.UseBrowser
	}

	// Scripts
	if user.Scripts.LoadTimeoutSeconds != 0 {
		result.Scripts.LoadTimeoutSeconds = user.Scripts.LoadTimeoutSeconds
	}
	mergeString(&result.Scripts.OnFailure, user.Scripts.OnFailure)

	// Navigation
	mergeString(&result.Navigation.LinkSelector, user.Navigation.LinkSelector)
	mergeString(&result.Navigation.ContentSelector, user.Navigation.ContentSelector)
	mergeString(&result.Navigation.HeaderTitleSelector, user.Navigation.HeaderTitleSelector)
	mergeString(&result.Navigation.SubtitleSelector, user.Navigation.SubtitleSelector)
	if len(user.Navigation.InterceptPatterns) > 0 {
		result.Navigation.InterceptPatterns = user.Navigation.InterceptPatterns
	}

	// Routes replace the table entry by entry
	if len(user.Routes) > 0 {
		routes := make(map[string]string, len(defaults.Routes)+len(user.Routes))
		for k, v := range defaults.Routes {
			routes[k] = v
		}
		for k, v := range user.Routes {
			if v == "" {
				delete(routes, k)
				continue
			}
			routes[k] = v
		}
		result.Routes = routes
	}

	// Session
	if md.IsDefined("session", "persist") {
		result.Session.Persist = user.Session.Persist
	}
	mergeString(&result.Session.Path, user.Session.Path)

	// Items
	mergeString(&result.Items.Path, user.Items.Path)

	// Server
	mergeString(&result.Server.Addr, user.Server.Addr)
	if md.IsDefined("server", "allowAllOrigins") {
		result.Server.AllowAll = user.Server.AllowAll
	}

	// Logging
	mergeString(&result.Logging.Level, user.Logging.Level)

	return &result
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// Validate checks values that have a fixed set of choices.
func (c *Config) Validate() error {
	switch c.Scripts.OnFailure {
	case "degrade", "fallback":
	default:
		return fmt.Errorf("scripts.onFailure must be \"degrade\" or \"fallback\", got %q", c.Scripts.OnFailure)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Scripts.LoadTimeoutSeconds < 0 || c.Fetcher.TimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// DefaultTOML returns the default configuration as a TOML string.
// Used by init-config to generate a user config file.
func DefaultTOML() string {
	return `# FINDIT configuration
# Save to ~/.config/findit/config.toml and customize
# Only include settings you want to change from defaults

# HTTP fetching settings
[fetcher]
userAgent = "FINDIT/1.0 (navigator)"
timeoutSeconds = 30
chromePath = ""               # Path to Chrome/Chromium (empty = auto-detect)
useBrowser = false            # Fetch pages through headless Chrome

# Script loading
[scripts]
loadTimeoutSeconds = 10       # Give up on a script after this long
onFailure = "degrade"         # "degrade" keeps going without the script, "fallback" reloads the page

# In-app navigation
[navigation]
linkSelector = ".nav-link"
contentSelector = "main"
headerTitleSelector = ".app-title"
subtitleSelector = ".subtitle"
interceptPatterns = ["**/*.html", "**/*.htm"]

# Page basename -> controller ("app" or "dashboard"); "" removes a route
[routes]
"" = "app"
"index.html" = "app"
"profile.html" = "app"
"dashboard.html" = "dashboard"

# History
[session]
persist = true                # Save history between runs
path = ""                     # empty = ~/.config/findit/session.json

# Item store
[items]
path = ""                     # empty = ~/.config/findit/items.json

# Bulletin site server
[server]
addr = "127.0.0.1:8080"
allowAllOrigins = false

[logging]
level = "info"
`
}
