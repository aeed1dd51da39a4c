package config

import (
	"fmt"

	"github.com/mtkallio/spotcharge/infra/mqttcharger"
	"github.com/mtkallio/spotcharge/infra/zaptec"
)

// ChargerConfig selects the charge-point controller backend.
type ChargerConfig struct {
	// Vendor is "zaptec", "mqtt" or "none". With "none" the run only
	// plans and reports.
	Vendor string `json:"vendor"`
	// CommandRetries bounds extra passes over failed charger commands.
	CommandRetries int `json:"command_retries"`

	Zaptec zaptec.Config      `json:"zaptec"`
	MQTT   mqttcharger.Config `json:"mqtt"`
}

// SetDefaults applies sane defaults.
func (c *ChargerConfig) SetDefaults() {
	if c.Vendor == "" {
		c.Vendor = "none"
	}
	c.Zaptec.SetDefaults()
}

// Validate checks the selected backend's configuration.
func (c ChargerConfig) Validate() error {
	switch c.Vendor {
	case "none":
		return nil
	case "zaptec":
		return c.Zaptec.Validate()
	case "mqtt":
		return c.MQTT.Validate()
	default:
		return fmt.Errorf("unknown vendor %s", c.Vendor)
	}
}
