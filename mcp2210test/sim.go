// Package mcp2210test provides a report-level MCP2210 simulator that
// satisfies the mcp2210.Transport contract, so device sessions can be
// exercised without hardware.
package mcp2210test

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf16"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
)

// maxPasswordTries is how many failed submissions the chip tolerates
// before blocking access until reconnect.
const maxPasswordTries = 5

// Sim emulates the MCP2210 at the wire level: it parses command reports
// and produces response reports, holding independent volatile and NVRAM
// copies of the chip and SPI settings, descriptor strings, USB key
// parameters and the access control state.
type Sim struct {
	Manufacturer string
	Product      string

	VID       uint16
	PID       uint16
	PowerAttr byte
	MaxPower  byte

	Access   byte // stored access control mode byte
	Password string
	Unlocked bool
	Attempts byte

	// BitRateStep, when nonzero, restricts the accepted bit rates to
	// multiples of it: any other requested rate is silently substituted
	// with the next lower multiple, like the real chip does with the
	// rates it cannot generate.
	BitRateStep uint32

	// FailNext maps a command byte to a completion code that is returned
	// once instead of executing the command.
	FailNext map[byte]byte

	// Gone simulates physical disconnection: every transfer fails with
	// a transport loss.
	Gone bool

	// ShortResponse truncates the next response report.
	ShortResponse bool

	volChip [14]byte // chip settings region, report bytes 4-17
	nvChip  [14]byte
	volSPI  [17]byte // SPI settings region, report bytes 4-20
	nvSPI   [17]byte

	pending []byte
}

// New returns a simulator with factory-like defaults and full NVRAM
// access.
func New() *Sim {
	s := &Sim{
		Manufacturer: "Microchip Technology Inc.",
		Product:      "MCP2210 USB-to-SPI Master",
		VID:          mcp2210.VID,
		PID:          mcp2210.PID,
		PowerAttr:    0x80,
		MaxPower:     0x32,
		FailNext:     map[byte]byte{},
	}
	binary.LittleEndian.PutUint32(s.volSPI[0:], 1500000)
	binary.LittleEndian.PutUint32(s.nvSPI[0:], 1500000)
	return s
}

// SendReport handles one command report and queues the response.
func (s *Sim) SendReport(p []byte) error {

	if s.Gone {
		return fmt.Errorf("%w: simulated unplug", mcp2210.ErrDisconnected)
	}
	if len(p) < mcp2210.ReportSz {
		return fmt.Errorf("short command report (%d bytes)", len(p))
	}

	cmd := p[0]
	rsp := make([]byte, mcp2210.ReportSz)
	rsp[0] = cmd

	if code, ok := s.FailNext[cmd]; ok {
		delete(s.FailNext, cmd)
		rsp[1] = code
		s.pending = rsp
		return nil
	}

	switch cmd {
	case 0x10: // chip status
		rsp[3] = 0x01 // bus owned by the USB bridge
		rsp[4] = s.Attempts
		if s.Unlocked {
			rsp[5] = 0x01
		}
	case 0x20: // get volatile chip settings
		copy(rsp[4:], s.volChip[:])
	case 0x21: // set volatile chip settings
		copy(s.volChip[:], p[4:18])
	case 0x40: // set volatile SPI settings
		copy(s.volSPI[:], p[4:21])
		s.roundBitRate(s.volSPI[:])
	case 0x41: // get volatile SPI settings
		copy(rsp[4:], s.volSPI[:])
	case 0x60:
		rsp[1] = s.nvWrite(p)
	case 0x61:
		rsp[1] = s.nvRead(p[1], rsp)
	case 0x70:
		rsp[1] = s.tryPassword(p)
	default:
		rsp[1] = 0xF9 // unknown command
	}

	s.pending = rsp
	return nil
}

// ReceiveReport returns the response queued by the previous SendReport.
func (s *Sim) ReceiveReport(p []byte, _ time.Duration) (int, error) {

	if s.Gone {
		return 0, fmt.Errorf("%w: simulated unplug", mcp2210.ErrDisconnected)
	}
	if nil == s.pending {
		return 0, fmt.Errorf("no response pending")
	}

	n := copy(p, s.pending)
	s.pending = nil
	if s.ShortResponse {
		s.ShortResponse = false
		n = 10
	}
	return n, nil
}

func (s *Sim) Close() error { return nil }

// nvWrite executes a set-NVRAM command, honoring the stored access
// control mode, and returns the completion code.
func (s *Sim) nvWrite(p []byte) byte {

	switch s.Access {
	case 0x80:
		return 0xFB // permanently locked
	case 0x40:
		if !s.Unlocked {
			return 0xFC // password not presented
		}
	}

	switch p[1] {
	case 0x10:
		copy(s.nvSPI[:], p[4:21])
		s.roundBitRate(s.nvSPI[:])
	case 0x20:
		copy(s.nvChip[:], p[4:18])
		s.Access = p[18]
		if 0x40 == s.Access {
			s.Password = cString(p[19:27])
			s.Unlocked = false
		}
	case 0x30:
		s.VID = binary.LittleEndian.Uint16(p[4:])
		s.PID = binary.LittleEndian.Uint16(p[6:])
		s.PowerAttr = p[8]
		s.MaxPower = p[9]
	case 0x40:
		s.Product = descString(p)
	case 0x50:
		s.Manufacturer = descString(p)
	default:
		return 0xF9
	}
	return 0x00
}

// nvRead executes a get-NVRAM command into rsp and returns the completion
// code.
func (s *Sim) nvRead(sub byte, rsp []byte) byte {

	rsp[2] = sub
	switch sub {
	case 0x10:
		copy(rsp[4:], s.nvSPI[:])
	case 0x20:
		copy(rsp[4:], s.nvChip[:])
		rsp[18] = s.Access
	case 0x30:
		binary.LittleEndian.PutUint16(rsp[12:], s.VID)
		binary.LittleEndian.PutUint16(rsp[14:], s.PID)
		rsp[29] = s.PowerAttr
		rsp[30] = s.MaxPower
	case 0x40:
		putDesc(rsp, s.Product)
	case 0x50:
		putDesc(rsp, s.Manufacturer)
	default:
		return 0xF9
	}
	return 0x00
}

// tryPassword executes a send-access-password command and returns the
// completion code.
func (s *Sim) tryPassword(p []byte) byte {

	if 0x40 != s.Access {
		return 0xFC
	}
	if s.Attempts >= maxPasswordTries {
		return 0xFB
	}
	if cString(p[4:4+mcp2210.PasswordMaxLen]) == s.Password {
		s.Unlocked = true
		return 0x00
	}
	s.Attempts++
	return 0xFD
}

// roundBitRate substitutes the bit rate in an SPI settings region with the
// nearest supported rate at or below it.
func (s *Sim) roundBitRate(region []byte) {

	if 0 == s.BitRateStep {
		return
	}
	r := binary.LittleEndian.Uint32(region)
	if r > mcp2210.BitRateMax {
		r = mcp2210.BitRateMax
	}
	r -= r % s.BitRateStep
	if r < s.BitRateStep {
		r = s.BitRateStep
	}
	binary.LittleEndian.PutUint32(region, r)
}

// cString interprets b as a zero-padded ASCII field.
func cString(b []byte) string {
	n := 0
	for n < len(b) && 0 != b[n] {
		n++
	}
	return string(b[:n])
}

// descString decodes the UTF-16LE string descriptor of a set-NVRAM
// command report.
func descString(p []byte) string {
	n := int(p[4])
	if n < 2 {
		return ""
	}
	n = (n - 2) / 2
	pt := make([]uint16, 0, n)
	for i := 0; i < n && 6+2*i+1 < len(p); i++ {
		pt = append(pt, binary.LittleEndian.Uint16(p[6+2*i:]))
	}
	return string(utf16.Decode(pt))
}

// putDesc encodes a string as a UTF-16LE string descriptor into a
// get-NVRAM response report.
func putDesc(rsp []byte, s string) {
	u := utf16.Encode([]rune(s))
	rsp[4] = byte(2*len(u) + 2)
	rsp[5] = 0x03
	for i, cp := range u {
		binary.LittleEndian.PutUint16(rsp[6+2*i:], cp)
	}
}
