package server

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration, loaded from YAML. Zero values fall
// back to DefaultConfig's choices at load time.
type Config struct {
	// --- Identity ---
	WorldName string `yaml:"world_name"`
	Port      int    `yaml:"port"`

	// --- World ---
	StartRoom int    `yaml:"start_room"` // where new players wake up
	DataDir   string `yaml:"data_dir"`   // bbolt world database directory

	// --- Files ---
	AliasFile string `yaml:"alias_file"` // extra command aliases, optional
	HelpFile  string `yaml:"help_file"`  // indexed help topics
	MOTDFile  string `yaml:"motd_file"`  // shown on connect, optional

	// --- TLS (telnet) ---
	Cleartext *bool  `yaml:"cleartext"` // nil = default true; explicitly false disables plaintext
	TLS       bool   `yaml:"tls"`
	TLSPort   int    `yaml:"tls_port"`
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`

	// --- Sessions ---
	IdleTimeout int `yaml:"idle_timeout"` // seconds, 0 = never

	// --- Audit ---
	AuditEnabled  bool   `yaml:"audit_enabled"`
	AuditDatabase string `yaml:"audit_database"` // SQLite file path
	AuditTimeout  int    `yaml:"audit_timeout"`  // busy timeout, seconds
	SpeechDays    int    `yaml:"speech_days"`    // room speech retention, days; 0 keeps forever

	// --- Web/Security ---
	WebEnabled     bool     `yaml:"web_enabled"` // HTTPS/WSS listener
	WebPort        int      `yaml:"web_port"`
	WebHost        string   `yaml:"web_host"`         // bind address, empty = all interfaces
	WebDomain      string   `yaml:"web_domain"`       // Let's Encrypt domain, empty = self-signed
	CertDir        string   `yaml:"cert_dir"`         // directory for generated certs
	WebCORSOrigins []string `yaml:"web_cors_origins"` // allowed CORS origins, empty = any
	WebRateLimit   int      `yaml:"web_rate_limit"`   // requests per minute per IP
	JWTSecret      string   `yaml:"jwt_secret"`       // signing secret, auto-generated if empty
	JWTExpiry      int      `yaml:"jwt_expiry"`       // seconds
}

// DefaultConfig returns a Config with runnable defaults.
func DefaultConfig() *Config {
	return &Config{
		WorldName:     "Emberwake",
		Port:          4201,
		StartRoom:     1,
		DataDir:       "data",
		HelpFile:      "text/help.txt",
		MOTDFile:      "text/motd.txt",
		IdleTimeout:   3600,
		AuditEnabled:  true,
		AuditDatabase: "data/audit.db",
		AuditTimeout:  5,
		SpeechDays:    7,
		WebEnabled:    true,
		WebPort:       8443,
		WebRateLimit:  60,
		JWTExpiry:     86400,
	}
}

// LoadConfig reads a YAML config file over the defaults. Paths for the
// alias, help and MOTD files are resolved relative to the config file's
// directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	conf := DefaultConfig()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	conf.AliasFile = rel(conf.AliasFile)
	conf.HelpFile = rel(conf.HelpFile)
	conf.MOTDFile = rel(conf.MOTDFile)

	return conf, nil
}

// Save writes the config as YAML, used by the -writeconfig bootstrap
// flag to produce a starting config file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// IsCleartext returns whether the cleartext listener is enabled.
// Defaults to true if not explicitly set.
func (c *Config) IsCleartext() bool {
	if c.Cleartext == nil {
		return true
	}
	return *c.Cleartext
}
