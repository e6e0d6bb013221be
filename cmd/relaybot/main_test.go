package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkConfig = `
networks:
  - { name: A, nickname: relay, servers: [{ host: irc.a }], channels: [{ name: "#x" }] }
  - { name: B, nickname: relay, enabled: false, servers: [{ host: irc.b }] }
binds:
  - { source: { network: A, channel: "#x" }, destination: { network: B, channel: "#y" }, duplex: true }
`

func TestCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaybot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(checkConfig), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--config", path})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "network A (irc, enabled): 1 servers, 1 channels")
	assert.Contains(t, out.String(), "network B (irc, disabled)")
	assert.Contains(t, out.String(), "bind A:#x <-> B:#y")
	assert.Contains(t, out.String(), "configuration ok")

	rootCmd.SetArgs([]string{"check", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, rootCmd.Execute())
}
