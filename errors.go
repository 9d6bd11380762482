package xhub

import (
	"errors"
	"fmt"
)

var (
	// ErrHubClosed is returned by every operation attempted after Hub.Close.
	ErrHubClosed = errors.New("xhub: hub is closed")
	// ErrReceptorClosed is returned when pushing to or reading from a closed Receptor.
	ErrReceptorClosed = errors.New("xhub: receptor is closed")
	// ErrMessengerClosed is returned when a deregistered Messenger is used to send.
	ErrMessengerClosed = errors.New("xhub: messenger is closed")
	// ErrAddressInUse is returned when registering an address that is already taken.
	ErrAddressInUse = errors.New("xhub: address already registered")
	// ErrAlreadyForwarded is returned when a client's message has already been passed on.
	ErrAlreadyForwarded = errors.New("xhub: message already forwarded")
	// ErrBuilderSent is returned when a MessageBuilder is sent twice.
	ErrBuilderSent = errors.New("xhub: message builder already sent")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("xhub: invalid config")
	// ErrObserverPoolShutdownTimeout is returned when observer workers do not drain in time.
	ErrObserverPoolShutdownTimeout = errors.New("xhub: observer pool shutdown timeout")

	errChannelClosed = errors.New("xhub: channel closed")
	errDone          = errors.New("xhub: done")
)

type ErrUnknownCodec struct{ name string }

func (e ErrUnknownCodec) Error() string { return fmt.Sprintf("unknown codec: %s", e.name) }
