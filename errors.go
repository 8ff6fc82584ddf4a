package mcp2210

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transport-level failure taxonomy. ErrTransportInit
// is fatal: callers are expected to abort the whole process, as there is no
// recovery path. ErrDisconnected is sticky: once observed, the device
// session refuses further operations until reopened.
var (
	ErrTransportInit = errors.New("could not initialize the HID transport")
	ErrNotFound      = errors.New("device not found")
	ErrBusy          = errors.New("device is currently unavailable")
	ErrClosed        = errors.New("device is not open")
	ErrDisconnected  = errors.New("device disconnected")
)

// StatusError is a failure reported by the chip itself through the
// completion code of a response report. It is distinct from transport
// errors and from decode failures: the exchange succeeded, but the chip
// declined the operation.
type StatusError struct {
	Cmd  byte
	Code byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command 0x%02X failed with status 0x%02X (%s)", e.Cmd, e.Code, statusText(e.Code))
}

func statusText(code byte) string {
	switch code {
	case StatusBusUnavailable:
		return "SPI bus not available"
	case StatusBusy:
		return "device busy"
	case StatusUnknownCommand:
		return "unknown command"
	case StatusWriteFailure:
		return "NVRAM write failure"
	case StatusBlocked:
		return "access blocked"
	case StatusRejected:
		return "access rejected"
	case StatusWrongPassword:
		return "wrong password"
	}
	return "unrecognized status"
}

// DecodeError is a malformed or unexpected response shape: a short read,
// or a response echoing a different command than the one sent. It must
// not be conflated with a device-reported status failure.
type DecodeError struct {
	Cmd    byte
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed response to command 0x%02X: %s", e.Cmd, e.Reason)
}
