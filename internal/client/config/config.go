package config

import "time"

// Config holds runtime settings for the TVM reference client.
//
// Fields:
//   - ServerURL: base URL of the vending machine, e.g. http://127.0.0.1:8080.
//   - AppName: application name mixed into the salted password hash. Must
//     match the server's app name.
//   - DeviceUID: device identifier; a random one is generated when empty.
//   - RequestTimeout: per-request HTTP timeout.
type Config struct {
	ServerURL      string
	AppName        string
	DeviceUID      string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.AppName = "mymobileappname"
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
