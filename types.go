package mcp2210

// VID and PID are the default vendor and product identifiers assigned by the
// USB-IF.
const (
	VID = 0x04D8 // 16-bit vendor ID for Microchip Technology Inc.
	PID = 0x00DE // 16-bit product ID for the Microchip MCP2210.
)

// NumPins is the number of general purpose (GP) pins on the chip.
const NumPins = 9

// Limits imposed by the chip on the various configurable parameters.
const (
	// DescMaxLen is the maximum number of characters in the manufacturer
	// and product descriptor string slots.
	DescMaxLen = 29

	// PasswordMaxLen is the maximum number of characters in the NVRAM
	// access password.
	PasswordMaxLen = 8

	// MaxPowerMax is the maximum storable max-power value, in the chip's
	// units of 2 mA (0x7F == 254 mA).
	MaxPowerMax = 0x7F

	// BitRateMin and BitRateMax bound the SPI bit rates the chip can
	// generate (Hz).
	BitRateMin = 1500
	BitRateMax = 12000000

	// SPIModeMax is the highest valid SPI mode.
	SPIModeMax = 3
)

// PinMode selects the function of a single GP pin.
type PinMode byte

// Recognized pin function designations. Pins GP0 through GP7 accept all
// three; GP8 accepts only PinGPIO and PinDedicated.
const (
	PinGPIO       PinMode = 0x00 // general purpose I/O
	PinChipSelect PinMode = 0x01 // SPI chip select line
	PinDedicated  PinMode = 0x02 // dedicated chip function
)

// IntMode selects what the dedicated interrupt counting pin counts.
type IntMode byte

// Interrupt counting modes.
const (
	IntCountNone IntMode = iota
	IntCountFallingEdges
	IntCountRisingEdges
	IntCountLowPulses
	IntCountHighPulses
)

// IntModeMax is the highest valid interrupt counting mode.
const IntModeMax = IntCountHighPulses

// AccessMode is the chip-wide NVRAM access control policy.
type AccessMode byte

// NVRAM access control modes, as stored on the chip.
const (
	ACNone     AccessMode = 0x00 // full access
	ACPassword AccessMode = 0x40 // password protected
	ACLocked   AccessMode = 0x80 // permanently locked
)

func (m AccessMode) String() string {
	switch m {
	case ACNone:
		return "full access"
	case ACPassword:
		return "password protected"
	case ACLocked:
		return "permanently locked"
	}
	return "unknown"
}

// PowerMode selects how the device reports being powered.
type PowerMode byte

// USB power modes.
const (
	PowerBus  PowerMode = 0x00
	PowerSelf PowerMode = 0x01
)

// PasswordStatus is the outcome of a password submission, as reported by
// the chip. These are statuses, not errors: callers branch on them.
type PasswordStatus byte

// Password submission outcomes.
const (
	PasswordCompleted PasswordStatus = 0x00 // full NVRAM write access granted
	PasswordBlocked   PasswordStatus = 0xFB // access attempts blocked until reconnect
	PasswordRejected  PasswordStatus = 0xFC // access rejected
	PasswordWrong     PasswordStatus = 0xFD // password not accepted, may retry
)

// ChipSettings holds the chip's GP pin, interrupt and bus behavior
// configuration, stored both in the volatile area and in NVRAM.
type ChipSettings struct {
	GP            [NumPins]PinMode // pin function selectors, GP0 through GP8
	GPDir         uint8            // direction bitmask for GP0-GP7, bit set = input
	GPOut         uint8            // default output value bitmask for GP0-GP7
	IntMode       IntMode          // interrupt counting mode
	RemoteWakeup  bool             // remote wake-up enable
	SPIBusCaptive bool             // do not release the bus when CS deasserts
}

// SPISettings holds the SPI transfer parameters, stored both in the
// volatile area and in NVRAM. Delay values are in quanta of 100 µs.
type SPISettings struct {
	BitRate             uint32 // Hz; must be a rate the chip actually accepted
	IdleCS              uint16 // chip select values between transfers
	ActiveCS            uint16 // chip select values during a transfer
	CSToDataDelay       uint16 // chip select assertion to first data byte
	DataToCSDelay       uint16 // last data byte to chip select deassertion
	InterByteDelay      uint16 // delay between subsequent data bytes
	BytesPerTransaction uint16
	Mode                byte // SPI mode 0-3
}

// USBParameters holds the USB descriptor parameters stored in NVRAM.
type USBParameters struct {
	VID          uint16
	PID          uint16
	MaxPower     byte // units of 2 mA, i.e. actual mA = 2 * MaxPower
	PowerMode    PowerMode
	RemoteWakeup bool // remote wake-up capable
}

// ChipStatus is the result of a status query.
type ChipStatus struct {
	BusReleasePending bool // an external master requested the SPI bus
	BusOwner          byte // 0 = none, 1 = USB bridge, 2 = external master
	PasswordAttempts  byte // password submissions since power-up
	PasswordGuessed   bool // a submission matched the stored password
}

// MaxPowerFromMilliamps converts a requested power draw in mA to the
// chip's 2 mA storage unit. Odd values round down to the previous even
// number of mA, and values beyond the chip maximum saturate.
func MaxPowerFromMilliamps(ma uint16) byte {
	if ma > 2*MaxPowerMax {
		ma = 2 * MaxPowerMax
	}
	return byte(ma / 2)
}

// MilliampsFromMaxPower converts a stored max-power unit value back to mA.
func MilliampsFromMaxPower(maxpow byte) uint16 {
	return 2 * uint16(maxpow)
}
