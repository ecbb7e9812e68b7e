package bus

import (
	"fmt"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// New creates an event bus based on configuration.
// Single-node runs use the in-process channel bus; shared deployments use
// NATS so audit consumers can run off-box.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
