package mcp2210

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// ReportSz is the size (in bytes) of all command and response reports.
const ReportSz = 64

// makeReport creates a new zero'd slice with the required length of command
// and response reports, both of which are always 64 bytes.
func makeReport() []byte { return make([]byte, ReportSz) }

// Constants for all recognized commands. These are sent as the first word
// in all command reports, and are echoed back as the first word in all
// response reports.
const (
	cmdChipStatus      byte = 0x10
	cmdGetChipSettings byte = 0x20 // volatile area
	cmdSetChipSettings byte = 0x21 // volatile area
	cmdSetSPISettings  byte = 0x40 // volatile area
	cmdGetSPISettings  byte = 0x41 // volatile area
	cmdSetNVRAM        byte = 0x60
	cmdGetNVRAM        byte = 0x61
	cmdSendPassword    byte = 0x70
)

// Sub-commands selecting the NVRAM area addressed by cmdSetNVRAM and
// cmdGetNVRAM, sent as the second word of the command report.
const (
	subSPISettings      byte = 0x10
	subChipSettings     byte = 0x20
	subUSBParameters    byte = 0x30
	subProductDesc      byte = 0x40
	subManufacturerDesc byte = 0x50
)

// Completion codes reported by the chip in the second word of every
// response report.
const (
	StatusCompleted      byte = 0x00
	StatusBusUnavailable byte = 0xF7
	StatusBusy           byte = 0xF8
	StatusUnknownCommand byte = 0xF9
	StatusWriteFailure   byte = 0xFA
	StatusBlocked        byte = 0xFB
	StatusRejected       byte = 0xFC
	StatusWrongPassword  byte = 0xFD
)

// putChipSettings encodes s into the settings region of a set-chip-settings
// command report. The same layout is used by the volatile set command and
// the NVRAM sub-command.
func putChipSettings(msg []byte, s ChipSettings) {
	for i, m := range s.GP {
		msg[4+i] = byte(m)
	}
	msg[13] = s.GPOut
	msg[14] = 0x00
	msg[15] = s.GPDir
	msg[16] = 0x01 // GP8 direction is always stored as input
	var other byte
	if s.RemoteWakeup {
		other |= 1 << 4
	}
	other |= byte(s.IntMode&0x07) << 1
	if s.SPIBusCaptive {
		other |= 1
	}
	msg[17] = other
}

// parseChipSettings decodes the settings region of a get-chip-settings
// response report.
func parseChipSettings(msg []byte) ChipSettings {
	var s ChipSettings
	for i := range s.GP {
		s.GP[i] = PinMode(msg[4+i])
	}
	s.GPOut = msg[13]
	s.GPDir = msg[15]
	s.RemoteWakeup = 0x01 == ((msg[17] >> 4) & 0x01)
	s.IntMode = IntMode((msg[17] >> 1) & 0x07)
	s.SPIBusCaptive = 0x01 == (msg[17] & 0x01)
	return s
}

// parseAccessMode extracts the NVRAM access control mode from a
// get-NVRAM-chip-settings response report.
func parseAccessMode(msg []byte) AccessMode {
	return AccessMode(msg[18])
}

// putAccessControl encodes the access control mode and the new password
// into a set-NVRAM-chip-settings command report. The password is only
// meaningful when mode is ACPassword.
func putAccessControl(msg []byte, mode AccessMode, password string) {
	msg[18] = byte(mode)
	for i := 0; i < len(password) && i < PasswordMaxLen; i++ {
		msg[19+i] = password[i]
	}
}

// putSPISettings encodes s into the settings region of a set-SPI-settings
// command report. All multi-byte fields are little-endian, per the chip's
// documented report layout.
func putSPISettings(msg []byte, s SPISettings) {
	binary.LittleEndian.PutUint32(msg[4:], s.BitRate)
	binary.LittleEndian.PutUint16(msg[8:], s.IdleCS)
	binary.LittleEndian.PutUint16(msg[10:], s.ActiveCS)
	binary.LittleEndian.PutUint16(msg[12:], s.CSToDataDelay)
	binary.LittleEndian.PutUint16(msg[14:], s.DataToCSDelay)
	binary.LittleEndian.PutUint16(msg[16:], s.InterByteDelay)
	binary.LittleEndian.PutUint16(msg[18:], s.BytesPerTransaction)
	msg[20] = s.Mode
}

// parseSPISettings decodes the settings region of a get-SPI-settings
// response report.
func parseSPISettings(msg []byte) SPISettings {
	return SPISettings{
		BitRate:             binary.LittleEndian.Uint32(msg[4:]),
		IdleCS:              binary.LittleEndian.Uint16(msg[8:]),
		ActiveCS:            binary.LittleEndian.Uint16(msg[10:]),
		CSToDataDelay:       binary.LittleEndian.Uint16(msg[12:]),
		DataToCSDelay:       binary.LittleEndian.Uint16(msg[14:]),
		InterByteDelay:      binary.LittleEndian.Uint16(msg[16:]),
		BytesPerTransaction: binary.LittleEndian.Uint16(msg[18:]),
		Mode:                msg[20],
	}
}

// USB power attribute bits, shared by the USB key parameter reports and
// the USB configuration descriptor.
const (
	powerAttrBus          byte = 0x80
	powerAttrSelf         byte = 0x40
	powerAttrRemoteWakeup byte = 0x20
)

// putUSBParameters encodes p into a set-NVRAM-USB-parameters command
// report. Note that the set command and the get response place these
// fields at different offsets.
func putUSBParameters(msg []byte, p USBParameters) {
	binary.LittleEndian.PutUint16(msg[4:], p.VID)
	binary.LittleEndian.PutUint16(msg[6:], p.PID)
	attr := powerAttrBus
	if PowerSelf == p.PowerMode {
		attr = powerAttrSelf
	}
	if p.RemoteWakeup {
		attr |= powerAttrRemoteWakeup
	}
	msg[8] = attr
	msg[9] = p.MaxPower
}

// parseUSBParameters decodes a get-NVRAM-USB-parameters response report.
func parseUSBParameters(msg []byte) USBParameters {
	p := USBParameters{
		VID:      binary.LittleEndian.Uint16(msg[12:]),
		PID:      binary.LittleEndian.Uint16(msg[14:]),
		MaxPower: msg[30],
	}
	attr := msg[29]
	if 0 != (attr & powerAttrSelf) {
		p.PowerMode = PowerSelf
	}
	p.RemoteWakeup = 0 != (attr & powerAttrRemoteWakeup)
	return p
}

// putStringDescriptor encodes s as a USB string descriptor (UTF-16LE code
// units preceded by a length and type word) into a set-NVRAM command
// report.
func putStringDescriptor(msg []byte, s string) error {
	u := utf16.Encode([]rune(s))
	if len(u) > DescMaxLen {
		return fmt.Errorf("descriptor exceeds %d characters: %q", DescMaxLen, s)
	}
	msg[4] = byte(2*len(u) + 2)
	msg[5] = 0x03 // USB string descriptor type
	for i, cp := range u {
		binary.LittleEndian.PutUint16(msg[6+2*i:], cp)
	}
	return nil
}

// parseStringDescriptor decodes a USB string descriptor from a get-NVRAM
// response report.
func parseStringDescriptor(msg []byte) string {
	n := int(msg[4])
	if n < 2 {
		return ""
	}
	n = (n - 2) / 2
	if n > DescMaxLen {
		n = DescMaxLen
	}
	pt := make([]uint16, n)
	for i := range pt {
		pt[i] = binary.LittleEndian.Uint16(msg[6+2*i:])
	}
	return string(utf16.Decode(pt))
}

// parseChipStatus decodes a chip status response report.
func parseChipStatus(msg []byte) ChipStatus {
	return ChipStatus{
		BusReleasePending: 0x01 == msg[2],
		BusOwner:          msg[3],
		PasswordAttempts:  msg[4],
		PasswordGuessed:   0x01 == msg[5],
	}
}
