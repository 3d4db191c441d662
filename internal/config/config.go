// internal/config/config.go
//
// This package handles configuration and the .kudos directory structure.
// Every directory kudos runs in gets a .kudos/ folder holding the settings
// file and the logs; slot working directories live beside it.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// KudosDir is the name of the directory we create in each project
	KudosDir = ".kudos"

	// EnvPrefix prefixes environment overrides, e.g. KUDOS_BASE_URL.
	EnvPrefix = "KUDOS"

	defaultBaseURL = "https://kudos.chu.cam.ac.uk/kudos/rest"
	defaultAuthURL = "https://raven.cam.ac.uk/auth/authenticate.html" +
		"?ver=3&url=https%3A%2F%2Fkudos.chu.cam.ac.uk%2Flogin" +
		"&desc=The%20KuDoS%20Project&msg=you%20requested%20an%20interactive%20login"
)

const defaultSettingsYAML = `# kudos settings
version: 1

# KuDoS REST root and the Raven page used for interactive login.
base_url: https://kudos.chu.cam.ac.uk/kudos/rest

# Session credential ({"crsid": ..., "auth": ...}), relative to the project directory.
credential_file: config.json

# Working document copied into every new slot directory.
template: template/perSV_mywork.tex

# Where slot directories ({course}_{n}) are created.
work_root: .

compiler:
  command: tectonic
  args: []

http:
  timeout: 30s

review:
  window: 672h

log:
  level: info
  format: console
`

// CompilerSettings selects the LaTeX engine.
type CompilerSettings struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
}

// HTTPSettings tunes the REST client.
type HTTPSettings struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"-"`
}

// ReviewSettings tunes the marked-work listing.
type ReviewSettings struct {
	Window time.Duration `mapstructure:"window" yaml:"-"`
}

// LogSettings configures the diagnostics log.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Settings models .kudos/config.yaml.
type Settings struct {
	Version        int              `mapstructure:"version" yaml:"version"`
	BaseURL        string           `mapstructure:"base_url" yaml:"base_url"`
	AuthURL        string           `mapstructure:"auth_url" yaml:"auth_url"`
	CredentialFile string           `mapstructure:"credential_file" yaml:"credential_file"`
	Template       string           `mapstructure:"template" yaml:"template"`
	WorkRoot       string           `mapstructure:"work_root" yaml:"work_root"`
	Compiler       CompilerSettings `mapstructure:"compiler" yaml:"compiler"`
	HTTP           HTTPSettings     `mapstructure:"http" yaml:"-"`
	Review         ReviewSettings   `mapstructure:"review" yaml:"-"`
	Log            LogSettings      `mapstructure:"log" yaml:"log"`
}

// Config holds the runtime configuration for kudos.
type Config struct {
	// ProjectDir is the directory where the user ran `kudos` from
	ProjectDir string

	// KudosProjectDir is ProjectDir/.kudos
	KudosProjectDir string

	// SettingsFile is the settings file that was read, if any
	SettingsFile string

	Settings Settings
}

// InitKudosDir creates the .kudos directory structure in the given project
// directory and writes a default settings file if there is none.
//
// Structure created:
// .kudos/
// ├── config.yaml
// └── logs/     <- kudos.log (diagnostics) and journey.log (slot history)
func InitKudosDir(projectDir string) error {
	kudosDir := filepath.Join(projectDir, KudosDir)
	if err := os.MkdirAll(filepath.Join(kudosDir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureSettingsFile(filepath.Join(kudosDir, "config.yaml"))
}

// NewConfig loads settings for projectDir. settingsPath overrides the
// default .kudos/config.yaml. Precedence: environment > file > defaults.
func NewConfig(projectDir, settingsPath string) (*Config, error) {
	cfg := &Config{
		ProjectDir:      projectDir,
		KudosProjectDir: filepath.Join(projectDir, KudosDir),
	}
	if strings.TrimSpace(settingsPath) == "" {
		settingsPath = cfg.SettingsPath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(settingsPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", settingsPath, err)
		}
	} else {
		cfg.SettingsFile = settingsPath
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", settingsPath, err)
	}
	settings.normalize()
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Settings = settings
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", 1)
	v.SetDefault("base_url", defaultBaseURL)
	v.SetDefault("auth_url", defaultAuthURL)
	v.SetDefault("credential_file", "config.json")
	v.SetDefault("template", filepath.Join("template", "perSV_mywork.tex"))
	v.SetDefault("work_root", ".")
	v.SetDefault("compiler.command", "tectonic")
	v.SetDefault("compiler.args", []string{})
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("review.window", "672h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// SettingsPath returns the default on-disk location for the settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.KudosProjectDir, "config.yaml")
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.KudosProjectDir, "logs")
}

// LogFilePath is the diagnostics log.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogsDir(), "kudos.log")
}

// JourneyLogPath is the slot history logbook.
func (c *Config) JourneyLogPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// CredentialPath returns the credential file resolved against ProjectDir.
func (c *Config) CredentialPath() string {
	return resolvePath(c.ProjectDir, c.Settings.CredentialFile)
}

// TemplatePath returns the template resolved against ProjectDir.
func (c *Config) TemplatePath() string {
	return resolvePath(c.ProjectDir, c.Settings.Template)
}

// WorkRoot returns where slot directories are created.
func (c *Config) WorkRoot() string {
	return resolvePath(c.ProjectDir, c.Settings.WorkRoot)
}

// settingsView is the YAML shape printed by `kudos config`; durations are
// rendered as strings so the output can be pasted back into config.yaml.
type settingsView struct {
	Settings `yaml:",inline"`
	HTTP     struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"http"`
	Review struct {
		Window string `yaml:"window"`
	} `yaml:"review"`
}

// EffectiveYAML renders the merged settings.
func (c *Config) EffectiveYAML() ([]byte, error) {
	view := settingsView{Settings: c.Settings}
	view.HTTP.Timeout = c.Settings.HTTP.Timeout.String()
	view.Review.Window = c.Settings.Review.Window.String()
	data, err := yaml.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("config: encode settings: %w", err)
	}
	return data, nil
}

func (s *Settings) normalize() {
	if s.Version == 0 {
		s.Version = 1
	}
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	s.AuthURL = strings.TrimSpace(s.AuthURL)
	s.CredentialFile = strings.TrimSpace(s.CredentialFile)
	s.Template = strings.TrimSpace(s.Template)
	s.WorkRoot = strings.TrimSpace(s.WorkRoot)
	if s.WorkRoot == "" {
		s.WorkRoot = "."
	}
	s.Compiler.Command = strings.TrimSpace(s.Compiler.Command)
	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))
}

func (s *Settings) validate() error {
	if s.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", s.BaseURL)
	}
	if s.CredentialFile == "" {
		return fmt.Errorf("credential_file is required")
	}
	if s.Template == "" {
		return fmt.Errorf("template is required")
	}
	if s.Compiler.Command == "" {
		return fmt.Errorf("compiler.command is required")
	}
	if s.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if s.Review.Window <= 0 {
		return fmt.Errorf("review.window must be positive")
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch s.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureSettingsFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultSettingsYAML), 0o644)
}
