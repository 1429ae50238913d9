package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LingByte/LingMeet/pkg/config"
)

func TestServerURL(t *testing.T) {
	t.Setenv("SERVER_URL", "")
	flagServer = ""
	assert.Equal(t, "ws://localhost:7072/ws", serverURL())

	t.Setenv("SERVER_URL", "wss://meet.example.com/ws")
	assert.Equal(t, "wss://meet.example.com/ws", serverURL())

	flagServer = "ws://10.0.0.2:7072/ws"
	t.Cleanup(func() { flagServer = "" })
	assert.Equal(t, "ws://10.0.0.2:7072/ws", serverURL())
}

func TestStunURLs(t *testing.T) {
	config.GlobalConfig = &config.Config{Mesh: config.MeshConfig{StunServers: []string{"stun:a:3478"}}}
	flagStun = ""
	assert.Equal(t, []string{"stun:a:3478"}, stunURLs())

	flagStun = "stun:b:3478, stun:c:3478"
	t.Cleanup(func() { flagStun = "" })
	assert.Equal(t, []string{"stun:b:3478", "stun:c:3478"}, stunURLs())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["join"])
	assert.True(t, names["clock"])
}
