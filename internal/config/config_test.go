package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level: debug
journal: relay.db
networks:
  - name: Libera
    nickname: relay
    sasl: { mechanism: PLAIN, username: relay, password: "keyring:libera" }
    servers:
      - { host: IRC.Libera.Chat, tls: true }
      - { host: irc2.libera.chat, port: 7000, password: "keyring:srv", enabled: false }
    channels:
      - { name: "#x", key: sekrit }
  - name: OFTC
    nickname: relay
    ping: { enabled: false, delay: 45s }
    rate: { per_second: 1, burst: 2 }
    servers:
      - { host: irc.oftc.net }
    channels:
      - { name: "#y", password: pw }
binds:
  - source: { network: Libera, channel: "#x" }
    destination: { network: oftc, channel: "#y" }
    duplex: true
    prefix_source: true
    reject: ["^!"]
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, cfg.Networks, 2)

	libera := cfg.Networks[0]
	assert.Equal(t, TypeIRC, libera.Type)
	assert.True(t, libera.IsEnabled())
	assert.Equal(t, "utf-8", libera.Encoding)
	assert.Equal(t, "376", libera.RegisteredOn)
	assert.Equal(t, 3, libera.ReconnectAttempts)
	assert.True(t, libera.Ping.IsEnabled())
	assert.Equal(t, 90*time.Second, libera.Ping.Delay)
	assert.Equal(t, Rate{PerSecond: 2, Burst: 5}, libera.Rate)
	assert.Equal(t, "irc.libera.chat", libera.Servers[0].Host)
	assert.Equal(t, 6697, libera.Servers[0].Port)
	assert.True(t, libera.Servers[0].IsEnabled())
	assert.False(t, libera.Servers[1].IsEnabled())
	assert.Equal(t, "sekrit", libera.Channels[0].JoinKey())

	oftc := cfg.Networks[1]
	assert.False(t, oftc.Ping.IsEnabled())
	assert.Equal(t, 45*time.Second, oftc.Ping.Delay)
	assert.Equal(t, 6667, oftc.Servers[0].Port)
	assert.Equal(t, "pw", oftc.Channels[0].JoinKey())

	require.Len(t, cfg.Binds, 1)
	assert.True(t, cfg.Binds[0].IsActive())
	assert.True(t, cfg.Binds[0].Duplex)
	assert.Equal(t, []string{"^!"}, cfg.Binds[0].Reject)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "nope: 1\n",
		"missing name":     "networks:\n  - nickname: r\n    servers: [{host: a}]\n",
		"missing nickname": "networks:\n  - name: A\n    servers: [{host: a}]\n",
		"no servers":       "networks:\n  - name: A\n    nickname: r\n",
		"missing host":     "networks:\n  - name: A\n    nickname: r\n    servers: [{port: 6667}]\n",
		"duplicate name":   "networks:\n  - {name: A, nickname: r, servers: [{host: a}]}\n  - {name: a, nickname: r, servers: [{host: b}]}\n",
		"unknown type":     "networks:\n  - {name: A, type: matrix, nickname: r, servers: [{host: a}]}\n",
		"unknown encoding": "networks:\n  - {name: A, encoding: klingon, nickname: r, servers: [{host: a}]}\n",
		"bad channel":      "networks:\n  - {name: A, nickname: r, servers: [{host: a}], channels: [{name: x}]}\n",
		"bad signal":       "networks:\n  - {name: A, nickname: r, registered_on: end, servers: [{host: a}]}\n",
		"bind unknown net": "networks:\n  - {name: A, nickname: r, servers: [{host: a}]}\nbinds:\n  - {source: {network: A, channel: '#x'}, destination: {network: B, channel: '#y'}}\n",
		"bind bad regex":   "networks:\n  - {name: A, nickname: r, servers: [{host: a}]}\nbinds:\n  - {source: {network: A, channel: '#x'}, destination: {network: A, channel: '#y'}, reject: ['(']}\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Truef(t, errors.Is(err, ErrInvalidConfig), "%s: %v", name, err)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Networks)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type mapResolver map[string]string

func (m mapResolver) Resolve(value string) (string, error) {
	if !strings.HasPrefix(value, "keyring:") {
		return value, nil
	}
	v, ok := m[strings.TrimPrefix(value, "keyring:")]
	if !ok {
		return "", errors.New("missing secret")
	}
	return v, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.NoError(t, cfg.ResolveSecrets(mapResolver{"libera": "saslpw", "srv": "serverpw"}))
	assert.Equal(t, "saslpw", cfg.Networks[0].SASL.Password)
	assert.Equal(t, "serverpw", cfg.Networks[0].Servers[1].Password)
	assert.Empty(t, cfg.Networks[0].Servers[0].Password)

	cfg, err = Parse([]byte(sample))
	require.NoError(t, err)
	assert.Error(t, cfg.ResolveSecrets(mapResolver{}))
}
