package mcp2210

import (
	"fmt"
	"time"

	usb "github.com/karalabe/hid"
)

// DefaultTimeout bounds every response read so a blocking call can never
// hang indefinitely.
const DefaultTimeout = 500 * time.Millisecond

// Transport is the narrow request/response contract the device session
// depends on. A transport exchanges fixed-size reports with one open
// device and reports connection loss by wrapping ErrDisconnected.
type Transport interface {
	SendReport(p []byte) error
	ReceiveReport(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// AttachedDevices returns the USB HID device descriptors of all connected
// devices matching the given VID and PID.
//
// Returns an empty slice if no devices were found. See the hid package
// documentation for details on inspecting the returned objects.
func AttachedDevices(vid uint16, pid uint16) []usb.DeviceInfo {

	var info []usb.DeviceInfo

	for _, i := range usb.Enumerate(vid, pid) {
		info = append(info, i)
	}

	return info
}

// OpenTransport opens the HID channel to the first attached device
// matching the given VID, PID and, if non-empty, serial number.
//
// Returns ErrTransportInit if HID support is unavailable on this platform
// (fatal), ErrNotFound if no matching device is attached, or ErrBusy if
// the device could not be claimed (typically held by another process).
func OpenTransport(vid uint16, pid uint16, serial string) (Transport, error) {

	if !usb.Supported() {
		return nil, ErrTransportInit
	}

	var info []usb.DeviceInfo
	for _, i := range AttachedDevices(vid, pid) {
		if "" == serial || i.Serial == serial {
			info = append(info, i)
		}
	}
	if 0 == len(info) {
		return nil, ErrNotFound
	}

	dev, err := info[0].Open()
	if nil != err {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}

	return &hidTransport{dev: dev}, nil
}

// hidTransport adapts a HIDAPI device handle to the Transport contract.
type hidTransport struct {
	dev *usb.Device
}

func (t *hidTransport) SendReport(p []byte) error {
	if _, err := t.dev.Write(p); nil != err {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (t *hidTransport) ReceiveReport(p []byte, timeout time.Duration) (int, error) {

	type result struct {
		buf []byte
		n   int
		err error
	}

	// Read into a private buffer so a late arrival after timeout cannot
	// race with the caller's reuse of p.
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, len(p))
		n, err := t.dev.Read(buf)
		ch <- result{buf: buf, n: n, err: err}
	}()

	select {
	case <-time.After(timeout):
		return 0, fmt.Errorf("receive timed out after %v", timeout)
	case r := <-ch:
		if nil != r.err {
			return r.n, fmt.Errorf("%w: %v", ErrDisconnected, r.err)
		}
		copy(p, r.buf[:r.n])
		return r.n, nil
	}
}

func (t *hidTransport) Close() error {
	return t.dev.Close()
}
