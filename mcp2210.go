// Package mcp2210 provides a high-level interface to the configuration
// areas of the Microchip MCP2210 USB-to-SPI protocol converter. The chip is
// implemented as a USB HID-class device; both its volatile settings and its
// one-time-programmable NVRAM are read and written through fixed-size
// 64-byte command/response reports.
//
// Datasheet: https://ww1.microchip.com/downloads/en/DeviceDoc/22288A.pdf
//
// USB HID support provided by: https://github.com/karalabe/hid
package mcp2210

import (
	"errors"
	"fmt"
	"time"
)

// MCP2210 is the primary object used for interacting with the device. All
// operations are blocking request/response round-trips over one open
// transport; the chip tolerates exactly one in-flight transaction at a
// time, so callers must not overlap operations on one handle.
type MCP2210 struct {
	t       Transport
	VID     uint16
	PID     uint16
	Serial  string
	timeout time.Duration
	dropped bool
}

// Open enumerates attached devices matching the given VID and PID (and
// serial number, if non-empty) and opens the first match.
//
// Returns ErrTransportInit (fatal), ErrNotFound or ErrBusy when the
// channel cannot be established.
func Open(vid uint16, pid uint16, serial string) (*MCP2210, error) {

	t, err := OpenTransport(vid, pid, serial)
	if nil != err {
		return nil, err
	}

	return &MCP2210{
		t:       t,
		VID:     vid,
		PID:     pid,
		Serial:  serial,
		timeout: DefaultTimeout,
	}, nil
}

// New wraps an already-open transport. It exists so the session can be
// driven over any report channel, including a simulated chip.
func New(t Transport) *MCP2210 {
	return &MCP2210{t: t, timeout: DefaultTimeout}
}

// IsOpen reports whether the device session holds an open transport.
func (m *MCP2210) IsOpen() bool {
	return nil != m && nil != m.t
}

// Disconnected reports whether a transport-level connection loss was
// observed during any previous call. The flag is sticky: it remains set
// until the device is reopened.
func (m *MCP2210) Disconnected() bool {
	return nil != m && m.dropped
}

// Close releases the transport. Closing an already-closed session has no
// effect.
func (m *MCP2210) Close() error {

	if !m.IsOpen() {
		return nil
	}

	err := m.t.Close()
	m.t = nil
	return err
}

// note inspects a transport failure and latches the sticky disconnected
// flag when the failure indicates connection loss.
func (m *MCP2210) note(err error) {
	if errors.Is(err, ErrDisconnected) {
		m.dropped = true
	}
}

// exchange transmits a command report and returns the response report.
// The cmd byte is inserted into the report at the appropriate position
// automatically.
//
// A transport failure, a short response, or a response echoing a different
// command all yield an error; the chip's completion code is not inspected
// here (see command).
func (m *MCP2210) exchange(cmd byte, msg []byte) ([]byte, error) {

	if !m.IsOpen() {
		return nil, ErrClosed
	}
	if m.dropped {
		return nil, ErrDisconnected
	}

	msg[0] = cmd
	if err := m.t.SendReport(msg); nil != err {
		m.note(err)
		return nil, fmt.Errorf("SendReport([cmd=0x%02X]): %w", cmd, err)
	}

	rsp := makeReport()
	n, err := m.t.ReceiveReport(rsp, m.timeout)
	if nil != err {
		m.note(err)
		return nil, fmt.Errorf("ReceiveReport([cmd=0x%02X]): %w", cmd, err)
	}
	if n < ReportSz {
		return nil, &DecodeError{Cmd: cmd, Reason: fmt.Sprintf("short response (%d of %d bytes)", n, ReportSz)}
	}
	if rsp[0] != cmd {
		return nil, &DecodeError{Cmd: cmd, Reason: fmt.Sprintf("response echoes command 0x%02X", rsp[0])}
	}

	return rsp, nil
}

// command performs an exchange and additionally requires a successful
// completion code, converting any other code into a StatusError.
func (m *MCP2210) command(cmd byte, msg []byte) ([]byte, error) {

	rsp, err := m.exchange(cmd, msg)
	if nil != err {
		return nil, err
	}
	if StatusCompleted != rsp[1] {
		return rsp, &StatusError{Cmd: cmd, Code: rsp[1]}
	}

	return rsp, nil
}

// nvRead reads the NVRAM area selected by sub and returns the response
// report.
func (m *MCP2210) nvRead(sub byte) ([]byte, error) {

	msg := makeReport()
	msg[1] = sub

	rsp, err := m.command(cmdGetNVRAM, msg)
	if nil != err {
		return nil, err
	}
	if rsp[2] != sub {
		return nil, &DecodeError{Cmd: cmdGetNVRAM, Reason: fmt.Sprintf("response echoes sub-command 0x%02X", rsp[2])}
	}

	return rsp, nil
}

// ChipStatus queries the chip's live status, including the password
// attempt counter and the current SPI bus owner.
func (m *MCP2210) ChipStatus() (ChipStatus, error) {

	rsp, err := m.command(cmdChipStatus, makeReport())
	if nil != err {
		return ChipStatus{}, err
	}

	return parseChipStatus(rsp), nil
}

// ChipSettings reads the chip settings from the volatile area.
func (m *MCP2210) ChipSettings() (ChipSettings, error) {

	rsp, err := m.command(cmdGetChipSettings, makeReport())
	if nil != err {
		return ChipSettings{}, err
	}

	return parseChipSettings(rsp), nil
}

// ConfigureChipSettings writes the chip settings to the volatile area.
// The change is live immediately and is lost on power cycle.
func (m *MCP2210) ConfigureChipSettings(s ChipSettings) error {

	msg := makeReport()
	putChipSettings(msg, s)

	_, err := m.command(cmdSetChipSettings, msg)
	return err
}

// SPISettings reads the SPI transfer settings from the volatile area.
func (m *MCP2210) SPISettings() (SPISettings, error) {

	rsp, err := m.command(cmdGetSPISettings, makeReport())
	if nil != err {
		return SPISettings{}, err
	}

	return parseSPISettings(rsp), nil
}

// ConfigureSPISettings writes the SPI transfer settings to the volatile
// area. The chip accepts any requested bit rate but silently substitutes
// the nearest rate it can generate; read the settings back to learn the
// effective rate, or use NearestCompatibleBitRate.
func (m *MCP2210) ConfigureSPISettings(s SPISettings) error {

	msg := makeReport()
	putSPISettings(msg, s)

	_, err := m.command(cmdSetSPISettings, msg)
	return err
}

// NVChipSettings reads the power-up chip settings from NVRAM.
func (m *MCP2210) NVChipSettings() (ChipSettings, error) {

	rsp, err := m.nvRead(subChipSettings)
	if nil != err {
		return ChipSettings{}, err
	}

	return parseChipSettings(rsp), nil
}

// WriteNVChipSettings writes the power-up chip settings to NVRAM, together
// with the access control mode to store. When mode is ACPassword, password
// is stored as the new access password; the chip additionally requires a
// prior successful UsePassword when its current mode is password-protected.
func (m *MCP2210) WriteNVChipSettings(s ChipSettings, mode AccessMode, password string) error {

	if len(password) > PasswordMaxLen {
		return fmt.Errorf("password exceeds %d characters", PasswordMaxLen)
	}

	msg := makeReport()
	msg[1] = subChipSettings
	putChipSettings(msg, s)
	putAccessControl(msg, mode, password)

	_, err := m.command(cmdSetNVRAM, msg)
	return err
}

// NVSPISettings reads the power-up SPI transfer settings from NVRAM.
func (m *MCP2210) NVSPISettings() (SPISettings, error) {

	rsp, err := m.nvRead(subSPISettings)
	if nil != err {
		return SPISettings{}, err
	}

	return parseSPISettings(rsp), nil
}

// WriteNVSPISettings writes the power-up SPI transfer settings to NVRAM.
func (m *MCP2210) WriteNVSPISettings(s SPISettings) error {

	msg := makeReport()
	msg[1] = subSPISettings
	putSPISettings(msg, s)

	_, err := m.command(cmdSetNVRAM, msg)
	return err
}

// ManufacturerDesc reads the manufacturer descriptor string from NVRAM.
func (m *MCP2210) ManufacturerDesc() (string, error) {

	rsp, err := m.nvRead(subManufacturerDesc)
	if nil != err {
		return "", err
	}

	return parseStringDescriptor(rsp), nil
}

// WriteManufacturerDesc writes the manufacturer descriptor string to
// NVRAM.
func (m *MCP2210) WriteManufacturerDesc(desc string) error {
	return m.writeDesc(subManufacturerDesc, desc)
}

// ProductDesc reads the product descriptor string from NVRAM.
func (m *MCP2210) ProductDesc() (string, error) {

	rsp, err := m.nvRead(subProductDesc)
	if nil != err {
		return "", err
	}

	return parseStringDescriptor(rsp), nil
}

// WriteProductDesc writes the product descriptor string to NVRAM.
func (m *MCP2210) WriteProductDesc(desc string) error {
	return m.writeDesc(subProductDesc, desc)
}

func (m *MCP2210) writeDesc(sub byte, desc string) error {

	msg := makeReport()
	msg[1] = sub
	if err := putStringDescriptor(msg, desc); nil != err {
		return err
	}

	_, err := m.command(cmdSetNVRAM, msg)
	return err
}

// USBParameters reads the USB key parameters (VID, PID, power options)
// from NVRAM.
func (m *MCP2210) USBParameters() (USBParameters, error) {

	rsp, err := m.nvRead(subUSBParameters)
	if nil != err {
		return USBParameters{}, err
	}

	return parseUSBParameters(rsp), nil
}

// WriteUSBParameters writes the USB key parameters to NVRAM.
func (m *MCP2210) WriteUSBParameters(p USBParameters) error {

	msg := makeReport()
	msg[1] = subUSBParameters
	putUSBParameters(msg, p)

	_, err := m.command(cmdSetNVRAM, msg)
	return err
}

// AccessControlMode reads the chip's current NVRAM access control mode.
func (m *MCP2210) AccessControlMode() (AccessMode, error) {

	rsp, err := m.nvRead(subChipSettings)
	if nil != err {
		return ACNone, err
	}

	return parseAccessMode(rsp), nil
}

// UsePassword submits a candidate access password. The outcome is a
// status, not an error: PasswordWrong invites another attempt, while
// PasswordBlocked is final for this session and requires the device to be
// physically reconnected before the chip accepts further submissions.
func (m *MCP2210) UsePassword(password string) (PasswordStatus, error) {

	if len(password) > PasswordMaxLen {
		return PasswordRejected, fmt.Errorf("password exceeds %d characters", PasswordMaxLen)
	}

	msg := makeReport()
	for i := 0; i < len(password); i++ {
		msg[4+i] = password[i]
	}

	rsp, err := m.exchange(cmdSendPassword, msg)
	if nil != err {
		return PasswordRejected, err
	}

	switch rsp[1] {
	case StatusCompleted:
		return PasswordCompleted, nil
	case StatusBlocked:
		return PasswordBlocked, nil
	case StatusRejected:
		return PasswordRejected, nil
	case StatusWrongPassword:
		return PasswordWrong, nil
	}

	return PasswordRejected, &StatusError{Cmd: cmdSendPassword, Code: rsp[1]}
}
