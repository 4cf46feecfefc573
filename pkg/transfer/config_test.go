package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTransferConfig(t *testing.T) {
	config := DefaultTransferConfig()

	assert.Equal(t, int64(DefaultPacketSize), config.PacketSize)
	assert.Equal(t, DefaultBufferSize, config.BufferSize)
	assert.True(t, config.AwaitReceiverClose)
	require.NoError(t, config.Validate())
}

func TestTransferConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*TransferConfig)
		wantErr bool
	}{
		{"defaults", func(*TransferConfig) {}, false},
		{"min packet", func(c *TransferConfig) { c.PacketSize = c.MinPacketSize }, false},
		{"max packet", func(c *TransferConfig) { c.PacketSize = c.MaxPacketSize }, false},
		{"packet too small", func(c *TransferConfig) { c.PacketSize = c.MinPacketSize - 1 }, true},
		{"packet too large", func(c *TransferConfig) { c.PacketSize = c.MaxPacketSize + 1 }, true},
		{"zero min packet", func(c *TransferConfig) { c.MinPacketSize = 0 }, true},
		{"min above max", func(c *TransferConfig) { c.MinPacketSize = c.MaxPacketSize + 1 }, true},
		{"zero buffer", func(c *TransferConfig) { c.BufferSize = 0 }, true},
		{"tiny subheader bound", func(c *TransferConfig) { c.MaxSubheaderSize = 8 }, true},
		{"zero connections", func(c *TransferConfig) { c.MaxConcurrentConnections = 0 }, true},
		{"negative queue", func(c *TransferConfig) { c.QueueSize = -1 }, true},
		{"unbuffered queue", func(c *TransferConfig) { c.QueueSize = 0 }, false},
		{"negative timeout", func(c *TransferConfig) { c.IdleTimeout = -time.Second }, true},
		{"timeouts disabled", func(c *TransferConfig) { c.IdleTimeout, c.DialTimeout = 0, 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultTransferConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadTransferConfig(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, os.WriteFile(valid, []byte(`{"packet_size": 2000000, "await_receiver_close": false}`), 0o644))

	config, err := LoadTransferConfig(valid)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), config.PacketSize)
	assert.False(t, config.AwaitReceiverClose)
	assert.Equal(t, DefaultBufferSize, config.BufferSize, "unset fields keep their defaults")

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"packet_size": 1}`), 0o644))
	_, err = LoadTransferConfig(invalid)
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`{`), 0o644))
	_, err = LoadTransferConfig(garbage)
	assert.Error(t, err)

	_, err = LoadTransferConfig(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
