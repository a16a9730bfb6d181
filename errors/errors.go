package cerr

import (
	"errors"
	"fmt"
)

var (
	MalformedOption         = errors.New("malformed option")
	ProtocolVersionMismatch = errors.New("invalid CoAP version, should be 1")
	Truncated               = errors.New("truncated message")
	InvalidTokenLength      = errors.New("invalid token length (> 8)")
	UnknownMessageType      = errors.New("unknown message type")
	MessageTooLarge         = errors.New("message exceeds link mtu")
	LinkInitFailure         = errors.New("link initialization failure")
	UnresponsiveSlave       = errors.New("unresponsive slave")
	UnparsableResourceList  = errors.New("unparsable resource list")
	UnknownSlave            = errors.New("unknown slave")
	SlaveNotRunning         = errors.New("slave not running")
	UnknownResource         = errors.New("unknown resource")
	RequestTimeout          = errors.New("request timeout")
	AssociationSuperseded   = errors.New("association superseded by a new discover")
	EngineStopped           = errors.New("engine stopped")
	NilMessage              = errors.New("message is nil")
	NotConfirmable          = errors.New("request is not confirmable")
	InvalidConfig           = errors.New("invalid configuration")
)

// UnknownCriticalOption is also a MalformedOption.
var UnknownCriticalOption = fmt.Errorf("%w: unknown critical option encountered", MalformedOption)
