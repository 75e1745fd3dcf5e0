package internal

import (
	"fmt"

	"github.com/ankyy/musicbox/internal/admission"
	"github.com/ankyy/musicbox/internal/api"
	"github.com/ankyy/musicbox/internal/database"
	"github.com/ankyy/musicbox/internal/downloader"
	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/ilyakaznacheev/cleanenv"
)

// MusicBoxConfig is the struct used to contain the various user config
// supplied by file or environment.
type MusicBoxConfig struct {
	Downloader downloader.Config       `yaml:"downloader"`
	Admission  admission.Config        `yaml:"admission"`
	Extractor  ytdlp.Config            `yaml:"extractor"`
	Database   database.DatabaseConfig `yaml:"database" env-required:"true"`
	RestConfig api.RestConfig          `yaml:"api"`

	// AuthSecret signs/verifies the bearer tokens presented by signed-in
	// callers. Requests remain servable without it; every caller simply
	// resolves as anonymous.
	AuthSecret string `yaml:"auth_secret" env:"AUTH_SECRET"`
}

// LoadFromFile reads a YAML configuration file in to a MusicBoxConfig,
// overlaying any recognised environment variables.
func (config *MusicBoxConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}

// LoadFromEnv populates the config purely from the environment, for
// deployments that ship no config file.
func (config *MusicBoxConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return nil
}
