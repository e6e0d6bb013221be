package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChannelName(t *testing.T) {
	for _, ok := range []string{"#go", "&local", "+modeless", "!12345chan"} {
		assert.NoError(t, ValidateChannelName(ok), ok)
	}
	for _, bad := range []string{"", "go", "#with space", "#a,b", "#" + strings.Repeat("x", 200)} {
		assert.Error(t, ValidateChannelName(bad), bad)
	}
}

func TestValidateNickname(t *testing.T) {
	assert.NoError(t, ValidateNickname("relay[bot]"))
	assert.Error(t, ValidateNickname(""))
	assert.Error(t, ValidateNickname("9lives"))
	assert.Error(t, ValidateNickname("bad nick"))
}

func TestValidateServerAddress(t *testing.T) {
	assert.NoError(t, ValidateServerAddress("irc.libera.chat", 6697))
	assert.Error(t, ValidateServerAddress("", 6667))
	assert.Error(t, ValidateServerAddress("irc.example.net", 0))
	assert.Error(t, ValidateServerAddress("irc.example.net", 70000))
	assert.Error(t, ValidateServerAddress("http://irc", 6667))
}

func TestValidateNetwork(t *testing.T) {
	assert.NoError(t, ValidateNetwork("Libera", "relay", 1))
	assert.Error(t, ValidateNetwork(" ", "relay", 1))
	assert.Error(t, ValidateNetwork("Libera", "", 1))
	assert.Error(t, ValidateNetwork("Libera", "relay", 0))
}

func TestValidateEndpoint(t *testing.T) {
	assert.NoError(t, ValidateEndpoint("Libera", "#x"))
	assert.Error(t, ValidateEndpoint("", "#x"))
	assert.Error(t, ValidateEndpoint("Libera", "x"))
}
