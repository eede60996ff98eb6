package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("no file", func(t *testing.T) {
		os.Args = []string{"cmd"}
		cfg := &Config{ServerURL: "keep"}
		parseJson(cfg)
		assert.Equal(t, "keep", cfg.ServerURL)
	})

	t.Run("partial overlay", func(t *testing.T) {
		b, err := json.Marshal(map[string]any{"server_url": "http://tvm:1", "request_timeout": "2s"})
		require.NoError(t, err)
		os.Args = []string{"cmd", "-c", writeTempJSON(t, string(b))}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "http://tvm:1", cfg.ServerURL)
		assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
		assert.Equal(t, "mymobileappname", cfg.AppName)
	})

	t.Run("invalid json panics", func(t *testing.T) {
		os.Args = []string{"cmd", "-config", writeTempJSON(t, "{")}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"cmd", "-c", filepath.Join(t.TempDir(), "nope.json")}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})
}
