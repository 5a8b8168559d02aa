package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// Requester is a transaction client that can carry gateway requests.
// Operations type-assert the session's client to it.
type Requester interface {
	transaction.Client
	Request(ctx context.Context, action Action, body map[string]any) (Response, error)
}

// Client is one device link through a Gateway.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	device  config.DeviceConfig
	gateway *Gateway
	logger  *logging.Logger

	mu         sync.Mutex
	errs       transaction.ErrorSet
	associated bool
	public     bool
}

var _ Requester = (*Client)(nil)

// NewClient creates an unassociated link to device.
func NewClient(device config.DeviceConfig, gateway *Gateway, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		device:  device,
		gateway: gateway,
		logger:  logger.ForDevice(device.ID, device.Protocol),
	}
}

// ID returns the inventory id of the device.
func (c *Client) ID() string { return c.device.ID }

// Device returns the inventory entry this link was built from.
func (c *Client) Device() config.DeviceConfig { return c.device }

// Associated reports whether the link currently holds an association.
func (c *Client) Associated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.associated
}

// Connect associates with the device. public selects the public association.
func (c *Client) Connect(ctx context.Context, public bool) error {
	if c.device.Address == "" {
		return fmt.Errorf("%w: device %s has no address", transaction.ErrNoPort, c.device.ID)
	}

	if _, err := c.send(ctx, Request{Action: ActionAssociate, Public: public}); err != nil {
		return err
	}

	c.mu.Lock()
	c.associated = true
	c.public = public
	c.mu.Unlock()
	return nil
}

// Request runs one exchange on the associated link.
func (c *Client) Request(ctx context.Context, action Action, body map[string]any) (Response, error) {
	if !c.Associated() {
		return Response{}, fmt.Errorf("%w: %s", ErrNotAssociated, c.device.ID)
	}
	return c.send(ctx, Request{Action: action, Body: body})
}

// Close releases the association. A link that is not associated closes as a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	associated := c.associated
	c.associated = false
	c.mu.Unlock()

	if !associated {
		return nil
	}
	_, err := c.send(ctx, Request{Action: ActionRelease})
	return err
}

// ForceDisconnect asks the gateway to abort the association without waiting
// for an answer. Local association state is cleared even when publishing fails.
func (c *Client) ForceDisconnect(_ context.Context) error {
	c.mu.Lock()
	c.associated = false
	c.mu.Unlock()

	return c.gateway.Notify(c.device.Protocol, Request{
		DeviceID: c.device.ID,
		Address:  c.device.Address,
		Action:   ActionAbort,
	})
}

// Log writes a device-scoped log line.
func (c *Client) Log(level slog.Level, msg string, args ...any) {
	c.logger.Log(context.Background(), level, msg, args...)
}

// Errors returns the current error state.
func (c *Client) Errors() transaction.ErrorSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs
}

// SetErrors replaces the current error state.
func (c *Client) SetErrors(errs transaction.ErrorSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = errs
}

// send performs one gateway round trip and records its outcome in the error state.
func (c *Client) send(ctx context.Context, req Request) (Response, error) {
	req.DeviceID = c.device.ID
	req.Address = c.device.Address

	resp, err := c.gateway.Request(ctx, c.device.Protocol, req)

	var protoErr *transaction.ProtocolError
	switch {
	case err == nil:
		c.SetErrors(transaction.OKSet())
	case errors.As(err, &protoErr):
		c.SetErrors(transaction.NewErrorSet(transaction.Error{Code: protoErr.Code, Message: protoErr.Message}))
	}
	return resp, err
}
