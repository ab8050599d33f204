package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = append([]string{"flaxvault-server"}, args...)
}

func TestFilterArgs_KeepsOnlyOwnedFlags(t *testing.T) {
	args := []string{"-a", ":8080", "-envfile", "prod.env", "-d=postgres://db", "-c", "cfg.json", "-envfile=-odd.env"}

	got := FilterArgs(args, []string{"-envfile"})
	assert.Equal(t, []string{"-envfile", "prod.env", "-envfile=-odd.env"}, got)

	got = FilterArgs([]string{"-envfile", "-a", ":8080"}, []string{"-envfile"})
	assert.Equal(t, []string{"-envfile"}, got, "a following flag is not taken as the value")
}

func TestStringFlag(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		names []string
		want  string
	}{
		{"separate value", []string{"-staging", "/var/spool/flax"}, []string{"staging"}, "/var/spool/flax"},
		{"double dash not owned", []string{"--staging=/tmp/s"}, []string{"staging"}, ""},
		{"single dash equals", []string{"-staging=/tmp/s"}, []string{"staging"}, "/tmp/s"},
		{"alias, last wins", []string{"-s", "/a", "-staging", "/b"}, []string{"staging", "s"}, "/b"},
		{"foreign flags ignored", []string{"-a", ":8080", "-q"}, []string{"staging"}, ""},
		{"missing value", []string{"-staging"}, []string{"staging"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withArgs(t, tt.args...)
			assert.Equal(t, tt.want, stringFlag(tt.names...))
		})
	}
}

func TestEnvFileFlags(t *testing.T) {
	withArgs(t, "-c", "/etc/flaxvault/server.json", "-envfile", "/etc/flaxvault/.env", "-a", ":8080")
	assert.Equal(t, "/etc/flaxvault/.env", EnvFileFlags())
	assert.Equal(t, "/etc/flaxvault/server.json", JsonConfigFlags())

	withArgs(t, "-config=/etc/flaxvault/worker.json")
	assert.Empty(t, EnvFileFlags())
	assert.Equal(t, "/etc/flaxvault/worker.json", JsonConfigFlags())
}
