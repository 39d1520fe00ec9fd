package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "warbler"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host               string `yaml:"host"`
		HttpPort           int    `yaml:"httpPort"`
		Domain             string `yaml:"domain"`
		Username           string `yaml:"username"`
		DisplayName        string `yaml:"displayName"`
		Summary            string `yaml:"summary"`
		DataDir            string `yaml:"dataDir"`
		UserAgent          string `yaml:"userAgent"`
		RequireSignatures  bool   `yaml:"requireSignatures"`
		AutoAcceptFollows  bool   `yaml:"autoAcceptFollows"`
		FreshnessWindowSec int    `yaml:"freshnessWindowSec"`
		RequestTimeoutSec  int    `yaml:"requestTimeoutSec"`
		ReclaimAfterSec    int    `yaml:"reclaimAfterSec"`
		WorkerIntervalSec  int    `yaml:"workerIntervalSec"`
	}
}

// ActorURI returns the canonical URI of the local actor.
func (c *AppConfig) ActorURI() string {
	return fmt.Sprintf("https://%s/activitypub/actor", c.Conf.Domain)
}

// KeyId returns the identifier of the local actor's public key.
func (c *AppConfig) KeyId() string {
	return c.ActorURI() + "#main-key"
}

func (c *AppConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.Conf.FreshnessWindowSec) * time.Second
}

func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Conf.RequestTimeoutSec) * time.Second
}

func (c *AppConfig) ReclaimAfter() time.Duration {
	return time.Duration(c.Conf.ReclaimAfterSec) * time.Second
}

func (c *AppConfig) WorkerInterval() time.Duration {
	return time.Duration(c.Conf.WorkerIntervalSec) * time.Second
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Info("Config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Warn("Could not write default config", "path", userConfigPath, "err", writeErr)
			} else {
				log.Info("Created default config file", "path", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)

	return c, nil
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("WARBLER_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("WARBLER_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Warn("Invalid WARBLER_HTTPPORT", "value", v)
		} else {
			c.Conf.HttpPort = port
		}
	}
	if v := os.Getenv("WARBLER_DOMAIN"); v != "" {
		c.Conf.Domain = v
	}
	if v := os.Getenv("WARBLER_USERNAME"); v != "" {
		c.Conf.Username = v
	}
	if v := os.Getenv("WARBLER_DATADIR"); v != "" {
		c.Conf.DataDir = v
	}
	if v := os.Getenv("WARBLER_USERAGENT"); v != "" {
		c.Conf.UserAgent = v
	}
	if os.Getenv("WARBLER_REQUIRE_SIGNATURES") == "true" {
		c.Conf.RequireSignatures = true
	}
	if os.Getenv("WARBLER_AUTO_ACCEPT_FOLLOWS") == "true" {
		c.Conf.AutoAcceptFollows = true
	}
}
