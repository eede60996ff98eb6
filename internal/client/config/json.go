package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophtvm/internal/flagx"
	"github.com/dmitrijs2005/gophtvm/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Missing
// keys leave the corresponding Config field untouched.
type JsonConfig struct {
	ServerURL      *string         `json:"server_url"`
	AppName        *string         `json:"app_name"`
	DeviceUID      *string         `json:"device_uid"`
	RequestTimeout *timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from the file named by -c
// or -config. Read or unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.AppName != nil {
		cfg.AppName = *jc.AppName
	}
	if jc.DeviceUID != nil {
		cfg.DeviceUID = *jc.DeviceUID
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
