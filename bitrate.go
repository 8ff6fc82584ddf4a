package mcp2210

import "fmt"

// SPIConfigurer is the narrow view of the device used by the bit-rate
// probe: it only needs to read and replace the live SPI transfer settings.
// *MCP2210 satisfies it; so does a simulated chip.
type SPIConfigurer interface {
	SPISettings() (SPISettings, error)
	ConfigureSPISettings(SPISettings) error
}

// NearestCompatibleBitRate finds the rate nearest to the requested bitrate
// among those the chip can actually generate. There is no way to query the
// supported set directly, so the probe exploits the chip's rounding
// behavior: an unsupported requested rate is silently substituted with the
// next lower supported one on readback.
//
// The search starts at four times the requested rate and descends: an
// accepted rate at or above the request becomes the upper candidate, an
// accepted rate at or below it becomes the lower candidate and ends the
// search, and a substituted rate restarts the probe from the substitution.
// The substitutions are strictly decreasing, which bounds the search.
//
// The probe mutates the live SPI settings and restores them from a
// checkpoint before returning, whether or not it succeeded. No other
// operation may touch the live SPI settings while it runs.
//
// Of the two candidates, the upper one wins only when it is strictly
// closer to the request; an exact tie favors the lower one. On error the
// returned rate is undefined and must not be applied.
func NearestCompatibleBitRate(dev SPIConfigurer, bitrate uint32) (uint32, error) {

	checkpoint, err := dev.SPISettings()
	if nil != err {
		return 0, fmt.Errorf("SPISettings(): %w", err)
	}

	test := checkpoint
	testRate := 4 * bitrate
	lower := uint32(BitRateMin)
	upper := uint32(BitRateMax)

	var probeErr error
	for {
		test.BitRate = testRate
		if probeErr = dev.ConfigureSPISettings(test); nil != probeErr {
			break
		}
		var cur SPISettings
		if cur, probeErr = dev.SPISettings(); nil != probeErr {
			break
		}
		if cur.BitRate == testRate {
			if testRate >= bitrate {
				upper = testRate
			}
			if testRate <= bitrate {
				lower = testRate
				break
			}
			testRate--
		} else {
			// the substituted rate is always lower than the requested one
			testRate = cur.BitRate
		}
	}

	if err := dev.ConfigureSPISettings(checkpoint); nil != err && nil == probeErr {
		probeErr = err
	}
	if nil != probeErr {
		return 0, fmt.Errorf("bit rate probe: %w", probeErr)
	}

	if upper-bitrate < bitrate-lower {
		return upper, nil
	}
	return lower, nil
}
