package link

import (
	"fmt"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// Inventory is the configured device list bound to a gateway.
// It is read-only after construction.
type Inventory struct {
	gateway *Gateway
	logger  *logging.Logger
	devices []config.DeviceConfig
	byID    map[string]config.DeviceConfig
}

// NewInventory builds an inventory from validated device config.
func NewInventory(devices []config.DeviceConfig, gateway *Gateway, logger *logging.Logger) *Inventory {
	inv := &Inventory{
		gateway: gateway,
		logger:  logger,
		devices: append([]config.DeviceConfig(nil), devices...),
		byID:    make(map[string]config.DeviceConfig, len(devices)),
	}
	for _, d := range inv.devices {
		inv.byID[d.ID] = d
	}
	return inv
}

// Devices returns the inventory in configuration order.
func (inv *Inventory) Devices() []config.DeviceConfig {
	return append([]config.DeviceConfig(nil), inv.devices...)
}

// Device returns one inventory entry.
func (inv *Inventory) Device(id string) (config.DeviceConfig, bool) {
	d, ok := inv.byID[id]
	return d, ok
}

// Len returns the number of devices.
func (inv *Inventory) Len() int { return len(inv.devices) }

// Clients builds fresh links for the given device ids, in the given order.
// An empty id list selects the whole inventory. A repeated id is rejected
// with transaction.ErrDuplicateClient.
func (inv *Inventory) Clients(ids []string) ([]transaction.Client, error) {
	if len(ids) == 0 {
		clients := make([]transaction.Client, 0, len(inv.devices))
		for _, d := range inv.devices {
			clients = append(clients, NewClient(d, inv.gateway, inv.logger))
		}
		return clients, nil
	}

	clients := make([]transaction.Client, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		d, ok := inv.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
		// Each call builds new links, so the server cannot spot repeats itself.
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", transaction.ErrDuplicateClient, id)
		}
		seen[id] = struct{}{}
		clients = append(clients, NewClient(d, inv.gateway, inv.logger))
	}
	return clients, nil
}
