package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
	"strings"
)

const Name = "gomphos"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		InstanceName string `yaml:"instanceName"`
		Host         string
		HttpPort     int    `yaml:"httpPort"`
		BaseUrl      string `yaml:"baseUrl"`
		// Federation settings: when Federate is false, outgoing delivery
		// is administratively disabled and PeerInboxes is ignored.
		Federate    bool     `yaml:"federate"`
		PeerInboxes []string `yaml:"peerInboxes"`
		// Token settings for the account service.
		TokenSecret     string `yaml:"tokenSecret"`
		TokenTtlMinutes int    `yaml:"tokenTtlMinutes"`
		// SMTP settings for password reset mails.
		SmtpHost     string `yaml:"smtpHost"`
		SmtpPort     int    `yaml:"smtpPort"`
		SmtpUser     string `yaml:"smtpUser"`
		SmtpPassword string `yaml:"smtpPassword"`
		FromEmail    string `yaml:"fromEmail"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
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
	if v := os.Getenv("GOMPHOS_INSTANCE_NAME"); v != "" {
		c.Conf.InstanceName = v
	}

	if v := os.Getenv("GOMPHOS_HOST"); v != "" {
		c.Conf.Host = v
	}

	if v := os.Getenv("GOMPHOS_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = port
	}

	if v := os.Getenv("GOMPHOS_BASE_URL"); v != "" {
		c.Conf.BaseUrl = v
	}

	if os.Getenv("GOMPHOS_FEDERATE") == "true" {
		c.Conf.Federate = true
	}

	// Comma-separated list of peer inbox URLs
	if v := os.Getenv("GOMPHOS_PEER_INBOXES"); v != "" {
		var inboxes []string
		for _, inbox := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(inbox); trimmed != "" {
				inboxes = append(inboxes, trimmed)
			}
		}
		c.Conf.PeerInboxes = inboxes
	}

	if v := os.Getenv("GOMPHOS_TOKEN_SECRET"); v != "" {
		c.Conf.TokenSecret = v
	}

	if v := os.Getenv("GOMPHOS_TOKEN_TTL_MINUTES"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.TokenTtlMinutes = ttl
	}

	if v := os.Getenv("GOMPHOS_SMTP_HOST"); v != "" {
		c.Conf.SmtpHost = v
	}

	if v := os.Getenv("GOMPHOS_SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.SmtpPort = port
	}

	if v := os.Getenv("GOMPHOS_SMTP_USER"); v != "" {
		c.Conf.SmtpUser = v
	}

	if v := os.Getenv("GOMPHOS_SMTP_PASSWORD"); v != "" {
		c.Conf.SmtpPassword = v
	}

	if v := os.Getenv("GOMPHOS_FROM_EMAIL"); v != "" {
		c.Conf.FromEmail = v
	}
}
