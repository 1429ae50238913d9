package config

import (
	"testing"
	"time"

	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(constants.ENV_MODE, "test")
	require.NoError(t, Load())
	require.NotNil(t, GlobalConfig)

	assert.Equal(t, "test", GlobalConfig.Mode)
	assert.Equal(t, constants.DefaultAddr, GlobalConfig.Addr)
	assert.Equal(t, constants.DefaultSendQueue, GlobalConfig.Relay.SendQueue)
	assert.Equal(t, int64(constants.DefaultMaxMessageSize), GlobalConfig.Relay.MaxMessageSize)
	assert.Equal(t, 30*time.Second, GlobalConfig.Mesh.NegotiationTimeout)
	assert.Equal(t, 5*time.Second, GlobalConfig.Mesh.ClockSyncInterval)
	assert.NotEmpty(t, GlobalConfig.Mesh.StunServers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(constants.ENV_MODE, "test")
	t.Setenv(constants.ENV_ADDR, ":9000")
	t.Setenv(constants.ENV_NEGOTIATION_TIMEOUT, "12s")
	t.Setenv(constants.ENV_STUN_SERVERS, "stun:a:1,stun:b:2")
	t.Setenv(constants.ENV_WS_SEND_QUEUE, "8")

	require.NoError(t, Load())
	assert.Equal(t, ":9000", GlobalConfig.Addr)
	assert.Equal(t, 12*time.Second, GlobalConfig.Mesh.NegotiationTimeout)
	assert.Equal(t, []string{"stun:a:1", "stun:b:2"}, GlobalConfig.Mesh.StunServers)
	assert.Equal(t, 8, GlobalConfig.Relay.SendQueue)
}
