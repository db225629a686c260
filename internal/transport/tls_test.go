package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientTLSConfigHonoursInsecureFlag(t *testing.T) {
	cfg := ClientTLSConfig(true)
	assert.True(t, cfg.InsecureSkipVerify)

	cfg = ClientTLSConfig(false)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestLoadServerTLSConfigMissingFilesErrors(t *testing.T) {
	_, err := LoadServerTLSConfig("does-not-exist-cert.pem", "does-not-exist-key.pem", nil)
	assert.Error(t, err)
}
