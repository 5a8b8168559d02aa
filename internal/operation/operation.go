package operation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-fleet/internal/link"
	"github.com/nerrad567/gray-logic-fleet/internal/transaction"
)

// Operation type names.
const (
	TypeRead  = "read"
	TypeWrite = "write"
	TypePing  = "ping"
)

// Spec is the JSON description of an operation.
type Spec struct {
	Type    string         `json:"type"`
	Objects []string       `json:"objects,omitempty"`
	Values  map[string]any `json:"values,omitempty"`
}

// Parse builds an operation from its description.
func Parse(spec Spec) (transaction.Operation, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case TypeRead:
		if len(spec.Objects) == 0 {
			return nil, fmt.Errorf("%w: read needs at least one object", ErrInvalidSpec)
		}
		for _, o := range spec.Objects {
			if strings.TrimSpace(o) == "" {
				return nil, fmt.Errorf("%w: empty object name", ErrInvalidSpec)
			}
		}
		return NewRead(spec.Objects), nil
	case TypeWrite:
		if len(spec.Values) == 0 {
			return nil, fmt.Errorf("%w: write needs at least one value", ErrInvalidSpec)
		}
		return NewWrite(spec.Values), nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}
}

// requester narrows a session client to a device link.
func requester(c transaction.Client) (link.Requester, error) {
	r, ok := c.(link.Requester)
	if !ok {
		return nil, transaction.NewProtocolError(transaction.CodeIDError,
			fmt.Sprintf("client %s is not a device link", c.ID()))
	}
	return r, nil
}

// Read fetches object values from every device and keeps them per device.
type Read struct {
	objects []string

	mu     sync.RWMutex
	values map[string]map[string]any
}

// NewRead creates a read of the given objects.
func NewRead(objects []string) *Read {
	return &Read{
		objects: slices.Clone(objects),
		values:  make(map[string]map[string]any),
	}
}

// Name implements transaction.Operation.
func (*Read) Name() string { return TypeRead }

// Objects returns the requested object names.
func (r *Read) Objects() []string { return slices.Clone(r.objects) }

// Exchange implements transaction.Operation. Values the device did return
// are kept even when others are missing.
func (r *Read) Exchange(ctx context.Context, c transaction.Client) error {
	dev, err := requester(c)
	if err != nil {
		return err
	}

	resp, err := dev.Request(ctx, link.ActionRead, map[string]any{"objects": r.objects})
	if err != nil {
		return err
	}

	got := maps.Clone(resp.Values)
	if got == nil {
		got = map[string]any{}
	}
	r.mu.Lock()
	r.values[c.ID()] = got
	r.mu.Unlock()

	var missing []string
	for _, o := range r.objects {
		if _, ok := got[o]; !ok {
			missing = append(missing, o)
		}
	}
	if len(missing) > 0 {
		return transaction.NewProtocolError(transaction.CodeMissingObject,
			"not returned: "+strings.Join(missing, ", "))
	}
	return nil
}

// Values returns a copy of the values read from one device.
func (r *Read) Values(deviceID string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[deviceID]
	return maps.Clone(v), ok
}

// All returns a copy of every device's values.
func (r *Read) All() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]any, len(r.values))
	for id, v := range r.values {
		out[id] = maps.Clone(v)
	}
	return out
}

// Write sets object values on every device. Immutable after construction.
type Write struct {
	values map[string]any
}

// NewWrite creates a write of the given values.
func NewWrite(values map[string]any) *Write {
	return &Write{values: maps.Clone(values)}
}

// Name implements transaction.Operation.
func (*Write) Name() string { return TypeWrite }

// Values returns a copy of the values to write.
func (w *Write) Values() map[string]any { return maps.Clone(w.values) }

// Exchange implements transaction.Operation.
func (w *Write) Exchange(ctx context.Context, c transaction.Client) error {
	dev, err := requester(c)
	if err != nil {
		return err
	}
	_, err = dev.Request(ctx, link.ActionWrite, map[string]any{"values": w.values})
	return err
}

// Ping checks that a device associates and answers an empty read.
type Ping struct{}

// Name implements transaction.Operation.
func (Ping) Name() string { return TypePing }

// Exchange implements transaction.Operation.
func (Ping) Exchange(ctx context.Context, c transaction.Client) error {
	dev, err := requester(c)
	if err != nil {
		return err
	}
	_, err = dev.Request(ctx, link.ActionRead, map[string]any{"objects": []string{}})
	return err
}
