package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// TransferConfig holds the tunables shared by the sender and the receiver.
type TransferConfig struct {
	// Packet configuration: files larger than PacketSize are split into
	// chunks of at most PacketSize bytes, one connection each.
	PacketSize    int64 `json:"packet_size"`
	MaxPacketSize int64 `json:"max_packet_size"`
	MinPacketSize int64 `json:"min_packet_size"`

	// Receiver settings
	BufferSize               int    `json:"buffer_size"` // disk write granularity, independent of PacketSize
	MaxSubheaderSize         uint64 `json:"max_subheader_size"`
	MaxConcurrentConnections int    `json:"max_concurrent_connections"`

	// Sender settings
	QueueSize int `json:"queue_size"`
	// AwaitReceiverClose makes the sender wait for the receiver to close a
	// chunk connection before opening the next one, so appends are applied
	// in send order even though the receiver handles connections in parallel.
	AwaitReceiverClose bool `json:"await_receiver_close"`

	// Timeouts; zero disables the bound.
	DialTimeout time.Duration `json:"dial_timeout"`
	IdleTimeout time.Duration `json:"idle_timeout"`
}

const (
	DefaultPacketSize = 4 * 1024 * 1024 // 4MB
	MaxPacketSize     = 1024 * 1024 * 1024
	MinPacketSize     = 4 * 1024

	DefaultBufferSize       = 8192
	DefaultMaxSubheaderSize = 64 * 1024
)

// DefaultTransferConfig returns a configuration with sensible defaults
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		PacketSize:    DefaultPacketSize,
		MaxPacketSize: MaxPacketSize,
		MinPacketSize: MinPacketSize,

		BufferSize:               DefaultBufferSize,
		MaxSubheaderSize:         DefaultMaxSubheaderSize,
		MaxConcurrentConnections: 64,

		QueueSize:          128,
		AwaitReceiverClose: true,

		DialTimeout: 10 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}
}

// LoadTransferConfig reads a JSON document from path on top of the
// defaults and validates the result.
func LoadTransferConfig(path string) (*TransferConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultTransferConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks if the configuration values are valid
func (tc *TransferConfig) Validate() error {
	if tc.MinPacketSize <= 0 {
		return errors.New("min_packet_size must be positive")
	}
	if tc.MaxPacketSize <= 0 {
		return errors.New("max_packet_size must be positive")
	}
	if tc.MinPacketSize > tc.MaxPacketSize {
		return errors.New("min_packet_size cannot be greater than max_packet_size")
	}
	if !tc.IsValidPacketSize(tc.PacketSize) {
		return fmt.Errorf("packet_size must be between %d and %d", tc.MinPacketSize, tc.MaxPacketSize)
	}

	if tc.BufferSize <= 0 {
		return errors.New("buffer_size must be positive")
	}
	if tc.MaxSubheaderSize < pathLengthSize+packetSizeSize {
		return fmt.Errorf("max_subheader_size must be at least %d", pathLengthSize+packetSizeSize)
	}
	if tc.MaxConcurrentConnections <= 0 {
		return errors.New("max_concurrent_connections must be positive")
	}

	if tc.QueueSize < 0 {
		return errors.New("queue_size cannot be negative")
	}
	if tc.DialTimeout < 0 || tc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

// IsValidPacketSize checks if a packet size is within acceptable bounds
func (tc *TransferConfig) IsValidPacketSize(packetSize int64) bool {
	return packetSize >= tc.MinPacketSize && packetSize <= tc.MaxPacketSize
}
