package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "conf.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "conf.json"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--config=alt.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=alt.json"},
		},
		{
			name:         "unknown flags and positionals ignored",
			args:         []string{"-x", "1", "--y=2", "list-users"},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
		{
			name:         "flag followed by another flag keeps no value",
			args:         []string{"-c", "-notvalue"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c"},
		},
		{
			name:         "several allowed flags keep order",
			args:         []string{"-a", ":8080", "-c", "conf.json", "--other", "x"},
			allowedFlags: []string{"-c", "-a"},
			want:         []string{"-a", ":8080", "-c", "conf.json"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestPositional(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"command only", []string{"list-users"}, []string{"list-users"}},
		{"command with argument after flags", []string{"-d", "dsn", "delete-user", "alice"}, []string{"delete-user", "alice"}},
		{"equals form never consumes", []string{"-d=dsn", "count-users"}, []string{"count-users"}},
		{"boolean flag before command", []string{"-v", "list-devices"}, []string{"list-devices"}},
		{"double dash stops parsing", []string{"-b", "memory", "--", "-weird-name"}, []string{"-weird-name"}},
		{"nothing positional", []string{"-b", "memory"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Positional(tt.args, []string{"-d", "-b"}))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	os.Args = []string{"bin", "-a", ":8080", "-config", "tvm.json"}
	assert.Equal(t, "tvm.json", JsonConfigFlags())

	os.Args = []string{"bin", "-c=short.json"}
	assert.Equal(t, "short.json", JsonConfigFlags())

	os.Args = []string{"bin", "-a", ":8080"}
	assert.Equal(t, "", JsonConfigFlags())
}
