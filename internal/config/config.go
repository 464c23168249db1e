package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr    string           `yaml:"listen_addr"`
	DB            DBConfig         `yaml:"db"`
	AuthorityPath string           `yaml:"authority_path"`
	SigningKey    SigningKeyConfig `yaml:"signing_key"`
	Appeals       AppealsConfig    `yaml:"appeals"`
	Integrity     IntegrityConfig  `yaml:"integrity"`
	Auth          AuthConfig       `yaml:"auth"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SigningKeyConfig struct {
	KeyID      string `yaml:"key_id"`
	SecretPath string `yaml:"secret_path"`
}

type AppealsConfig struct {
	WindowDays int `yaml:"window_days"`
}

// IntegrityConfig tunes the rapid-modification heuristic. Zero values fall
// back to the verifier defaults.
type IntegrityConfig struct {
	RapidWindowSeconds int `yaml:"rapid_window_seconds"`
	RapidMedium        int `yaml:"rapid_medium"`
	RapidHigh          int `yaml:"rapid_high"`
}

type AuthConfig struct {
	DevToken string       `yaml:"dev_token"`
	Actors   []ActorToken `yaml:"actors"`
}

// ActorToken binds a bearer token to an actor identity. Kind is "human" or
// "system"; empty defaults to human.
type ActorToken struct {
	Token string `yaml:"token"`
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Kind  string `yaml:"kind"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.AuthorityPath == "" {
		return fmt.Errorf("authority_path is required")
	}
	if c.SigningKey.KeyID == "" {
		return fmt.Errorf("signing_key.key_id is required")
	}
	if c.SigningKey.SecretPath == "" {
		return fmt.Errorf("signing_key.secret_path is required")
	}

	if c.DB.Driver != "" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is set")
	}
	if c.Appeals.WindowDays < 0 {
		return fmt.Errorf("appeals.window_days must not be negative")
	}

	for i, a := range c.Auth.Actors {
		if a.Token == "" || a.ID == "" {
			return fmt.Errorf("auth.actors[%d]: token and id are required", i)
		}
		switch a.Kind {
		case "", "human", "system":
		default:
			return fmt.Errorf("auth.actors[%d]: kind must be human or system", i)
		}
	}

	return nil
}
