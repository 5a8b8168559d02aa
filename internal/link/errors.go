package link

import "errors"

// Sentinel errors for device links.
var (
	// ErrGatewayClosed indicates the gateway stopped while a request was pending.
	ErrGatewayClosed = errors.New("link: gateway closed")

	// ErrNotAssociated indicates an exchange on a link that is not associated.
	ErrNotAssociated = errors.New("link: not associated")

	// ErrUnknownDevice indicates a device id that is not in the inventory.
	ErrUnknownDevice = errors.New("link: unknown device")

	// ErrInvalidResponse indicates a gateway response that could not be decoded.
	ErrInvalidResponse = errors.New("link: invalid response")
)
