// Package configurator maps between an edited in-memory MCP2210
// configuration and the state stored on a device: it models the
// configuration, persists it to and from XML, plans the minimal ordered
// list of NVRAM writes, and runs that plan against an open device session
// with verification.
package configurator

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
)

// Configuration aggregates everything the chip stores in NVRAM. Two
// configurations are equal iff every field is equal; equality is what
// detects "no changes" before a write and what verification checks after
// one.
type Configuration struct {
	Manufacturer string
	Product      string
	USB          mcp2210.USBParameters
	Chip         mcp2210.ChipSettings
	SPI          mcp2210.SPISettings
}

// Equal reports field-by-field equality.
func (c Configuration) Equal(other Configuration) bool {
	return c == other
}

// Validate checks every field against the chip's limits, before any device
// call is made. All violations are reported, not just the first.
func (c Configuration) Validate() error {

	var result *multierror.Error

	if n := len([]rune(c.Manufacturer)); n > mcp2210.DescMaxLen {
		result = multierror.Append(result, fmt.Errorf("manufacturer descriptor has %d characters, limit is %d", n, mcp2210.DescMaxLen))
	}
	if n := len([]rune(c.Product)); n > mcp2210.DescMaxLen {
		result = multierror.Append(result, fmt.Errorf("product descriptor has %d characters, limit is %d", n, mcp2210.DescMaxLen))
	}
	if 0 == c.USB.VID {
		result = multierror.Append(result, fmt.Errorf("vendor ID must not be 0000"))
	}
	if 0 == c.USB.PID {
		result = multierror.Append(result, fmt.Errorf("product ID must not be 0000"))
	}
	if c.USB.MaxPower > mcp2210.MaxPowerMax {
		result = multierror.Append(result, fmt.Errorf("max power value 0x%02x exceeds 0x%02x", c.USB.MaxPower, mcp2210.MaxPowerMax))
	}
	if c.USB.PowerMode > mcp2210.PowerSelf {
		result = multierror.Append(result, fmt.Errorf("invalid power mode: %d", c.USB.PowerMode))
	}
	for i, m := range c.Chip.GP {
		if m > mcp2210.PinDedicated {
			result = multierror.Append(result, fmt.Errorf("invalid mode for pin GP%d: %d", i, m))
		}
	}
	if mcp2210.PinChipSelect == c.Chip.GP[8] {
		result = multierror.Append(result, fmt.Errorf("pin GP8 cannot be a chip select"))
	}
	if c.Chip.IntMode > mcp2210.IntModeMax {
		result = multierror.Append(result, fmt.Errorf("invalid interrupt counting mode: %d", c.Chip.IntMode))
	}
	if c.SPI.Mode > mcp2210.SPIModeMax {
		result = multierror.Append(result, fmt.Errorf("invalid SPI mode: %d", c.SPI.Mode))
	}
	if c.SPI.BitRate < mcp2210.BitRateMin || c.SPI.BitRate > mcp2210.BitRateMax {
		result = multierror.Append(result, fmt.Errorf("bit rate %d Hz outside [%d, %d]", c.SPI.BitRate, mcp2210.BitRateMin, mcp2210.BitRateMax))
	}

	return result.ErrorOrNil()
}
