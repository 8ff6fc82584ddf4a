package configurator

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
)

// The on-disk format is a small XML document rooted at <mcp2210config>,
// with one element per configuration concern and values carried in
// attributes. Elements may be omitted: reading merges the file over the
// configuration passed in, leaving absent fields untouched.

type xmlConfiguration struct {
	XMLName      xml.Name         `xml:"mcp2210config"`
	Manufacturer *xmlDescriptor   `xml:"manufacturer"`
	Product      *xmlDescriptor   `xml:"product"`
	VID          *xmlHexValue     `xml:"vid"`
	PID          *xmlHexValue     `xml:"pid"`
	Power        *xmlPower        `xml:"power"`
	RemoteWakeup *xmlRemoteWakeup `xml:"remotewakeup"`
	Pins         *xmlPins         `xml:"pins"`
	Interrupt    *xmlInterrupt    `xml:"interrupt"`
	SPIBus       *xmlSPIBus       `xml:"spibus"`
	SPI          *xmlSPI          `xml:"spi"`
}

type xmlDescriptor struct {
	String string `xml:"string,attr"`
}

type xmlHexValue struct {
	Value string `xml:"value,attr"`
}

type xmlPower struct {
	Maximum string `xml:"maximum,attr"`
	Self    string `xml:"self,attr"`
}

type xmlRemoteWakeup struct {
	Capable string `xml:"capable,attr"`
	Enabled string `xml:"enabled,attr"`
}

type xmlPins struct {
	GP0   *xmlPinMode  `xml:"gp0"`
	GP1   *xmlPinMode  `xml:"gp1"`
	GP2   *xmlPinMode  `xml:"gp2"`
	GP3   *xmlPinMode  `xml:"gp3"`
	GP4   *xmlPinMode  `xml:"gp4"`
	GP5   *xmlPinMode  `xml:"gp5"`
	GP6   *xmlPinMode  `xml:"gp6"`
	GP7   *xmlPinMode  `xml:"gp7"`
	GP8   *xmlPinMode  `xml:"gp8"`
	GPDir *xmlHexValue `xml:"gpdir"`
	GPOut *xmlHexValue `xml:"gpout"`
}

type xmlPinMode struct {
	Mode string `xml:"mode,attr"`
}

type xmlInterrupt struct {
	Mode string `xml:"mode,attr"`
}

type xmlSPIBus struct {
	Captive string `xml:"captive,attr"`
}

type xmlSPI struct {
	BitRate  string `xml:"bitrate,attr"`
	Mode     string `xml:"mode,attr"`
	ActiveCS string `xml:"actcs,attr"`
	IdleCS   string `xml:"idlcs,attr"`
	CSToData string `xml:"csdtdly,attr"`
	DataToCS string `xml:"dtcsdly,attr"`
	ByteDly  string `xml:"itbytdly,attr"`
	NBytes   string `xml:"nbytes,attr"`
}

// ReadConfiguration decodes an XML configuration document from r into c,
// overwriting only the fields the document carries. Failures carry a
// human-readable reason naming the offending element and its allowed
// range.
func ReadConfiguration(r io.Reader, c *Configuration) error {

	var doc xmlConfiguration
	if err := xml.NewDecoder(r).Decode(&doc); nil != err {
		var syn *xml.SyntaxError
		if errors.As(err, &syn) {
			return fmt.Errorf("line %d: %s", syn.Line, syn.Msg)
		}
		return fmt.Errorf("not a valid MCP2210 configuration file: %v", err)
	}

	if nil != doc.Manufacturer {
		if n := len([]rune(doc.Manufacturer.String)); n > mcp2210.DescMaxLen {
			return fmt.Errorf("in \"manufacturer\" element, the \"string\" attribute is invalid: it should have no more than %d characters", mcp2210.DescMaxLen)
		}
		c.Manufacturer = doc.Manufacturer.String
	}
	if nil != doc.Product {
		if n := len([]rune(doc.Product.String)); n > mcp2210.DescMaxLen {
			return fmt.Errorf("in \"product\" element, the \"string\" attribute is invalid: it should have no more than %d characters", mcp2210.DescMaxLen)
		}
		c.Product = doc.Product.String
	}
	if nil != doc.VID {
		v, err := hexWord("vid", doc.VID.Value, 0x0001, 0xFFFF)
		if nil != err {
			return err
		}
		c.USB.VID = v
	}
	if nil != doc.PID {
		v, err := hexWord("pid", doc.PID.Value, 0x0001, 0xFFFF)
		if nil != err {
			return err
		}
		c.USB.PID = v
	}
	if nil != doc.Power {
		if "" != doc.Power.Maximum {
			v, err := hexWord("power", doc.Power.Maximum, 0x00, mcp2210.MaxPowerMax)
			if nil != err {
				return err
			}
			c.USB.MaxPower = byte(v)
		}
		if "" != doc.Power.Self {
			self, err := boolAttr("power", "self", doc.Power.Self)
			if nil != err {
				return err
			}
			c.USB.PowerMode = mcp2210.PowerBus
			if self {
				c.USB.PowerMode = mcp2210.PowerSelf
			}
		}
	}
	if nil != doc.RemoteWakeup {
		if "" != doc.RemoteWakeup.Capable {
			v, err := boolAttr("remotewakeup", "capable", doc.RemoteWakeup.Capable)
			if nil != err {
				return err
			}
			c.USB.RemoteWakeup = v
		}
		if "" != doc.RemoteWakeup.Enabled {
			v, err := boolAttr("remotewakeup", "enabled", doc.RemoteWakeup.Enabled)
			if nil != err {
				return err
			}
			c.Chip.RemoteWakeup = v
		}
	}
	if nil != doc.Pins {
		if err := readPins(doc.Pins, &c.Chip); nil != err {
			return err
		}
	}
	if nil != doc.Interrupt {
		v, err := decWord("interrupt", "mode", doc.Interrupt.Mode, uint16(mcp2210.IntModeMax))
		if nil != err {
			return err
		}
		c.Chip.IntMode = mcp2210.IntMode(v)
	}
	if nil != doc.SPIBus {
		v, err := boolAttr("spibus", "captive", doc.SPIBus.Captive)
		if nil != err {
			return err
		}
		c.Chip.SPIBusCaptive = v
	}
	if nil != doc.SPI {
		if err := readSPI(doc.SPI, &c.SPI); nil != err {
			return err
		}
	}

	return nil
}

func readPins(pins *xmlPins, chip *mcp2210.ChipSettings) error {

	modes := []*xmlPinMode{pins.GP0, pins.GP1, pins.GP2, pins.GP3, pins.GP4, pins.GP5, pins.GP6, pins.GP7, pins.GP8}
	for i, m := range modes {
		if nil == m {
			continue
		}
		max := uint16(mcp2210.PinDedicated)
		v, err := decWord(fmt.Sprintf("gp%d", i), "mode", m.Mode, max)
		if nil != err {
			return err
		}
		chip.GP[i] = mcp2210.PinMode(v)
	}
	if nil != pins.GPDir {
		v, err := hexWord("gpdir", pins.GPDir.Value, 0x00, 0xFF)
		if nil != err {
			return err
		}
		chip.GPDir = byte(v)
	}
	if nil != pins.GPOut {
		v, err := hexWord("gpout", pins.GPOut.Value, 0x00, 0xFF)
		if nil != err {
			return err
		}
		chip.GPOut = byte(v)
	}
	return nil
}

func readSPI(spi *xmlSPI, s *mcp2210.SPISettings) error {

	if "" != spi.BitRate {
		v, err := strconv.ParseUint(spi.BitRate, 10, 32)
		if nil != err || v < mcp2210.BitRateMin || v > mcp2210.BitRateMax {
			return fmt.Errorf("in \"spi\" element, the \"bitrate\" attribute is invalid: it should be an integer between %d and %d", mcp2210.BitRateMin, mcp2210.BitRateMax)
		}
		s.BitRate = uint32(v)
	}
	if "" != spi.Mode {
		v, err := decWord("spi", "mode", spi.Mode, mcp2210.SPIModeMax)
		if nil != err {
			return err
		}
		s.Mode = byte(v)
	}
	fields := []struct {
		attr string
		val  string
		dst  *uint16
	}{
		{"actcs", spi.ActiveCS, &s.ActiveCS},
		{"idlcs", spi.IdleCS, &s.IdleCS},
		{"csdtdly", spi.CSToData, &s.CSToDataDelay},
		{"dtcsdly", spi.DataToCS, &s.DataToCSDelay},
		{"itbytdly", spi.ByteDly, &s.InterByteDelay},
		{"nbytes", spi.NBytes, &s.BytesPerTransaction},
	}
	for _, f := range fields {
		if "" == f.val {
			continue
		}
		v, err := strconv.ParseUint(f.val, 10, 16)
		if nil != err {
			return fmt.Errorf("in \"spi\" element, the %q attribute is invalid: it should be an integer between 0 and 65535", f.attr)
		}
		*f.dst = uint16(v)
	}
	return nil
}

// hexWord parses a hexadecimal attribute value within [min, max], named
// after its element for error reporting.
func hexWord(element, value string, min, max uint16) (uint16, error) {
	v, err := strconv.ParseUint(value, 16, 16)
	if nil != err || uint16(v) > max || uint16(v) < min {
		return 0, fmt.Errorf("in %q element, the \"value\" attribute is invalid: it should be a hexadecimal integer between %x and %x", element, min, max)
	}
	return uint16(v), nil
}

// decWord parses a decimal attribute value within [0, max].
func decWord(element, attr, value string, max uint16) (uint16, error) {
	v, err := strconv.ParseUint(value, 10, 16)
	if nil != err || uint16(v) > max {
		return 0, fmt.Errorf("in %q element, the %q attribute is invalid: it should be an integer between 0 and %d", element, attr, max)
	}
	return uint16(v), nil
}

// boolAttr parses a boolean attribute accepting "true", "false", "1" or
// "0".
func boolAttr(element, attr, value string) (bool, error) {
	switch value {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("in %q element, the %q attribute is invalid: it should be \"true\", \"false\", \"1\" or \"0\"", element, attr)
}

// WriteConfiguration encodes c as an XML configuration document. The
// output round-trips through ReadConfiguration without loss.
func WriteConfiguration(w io.Writer, c Configuration) error {

	doc := xmlConfiguration{
		Manufacturer: &xmlDescriptor{String: c.Manufacturer},
		Product:      &xmlDescriptor{String: c.Product},
		VID:          &xmlHexValue{Value: fmt.Sprintf("%04x", c.USB.VID)},
		PID:          &xmlHexValue{Value: fmt.Sprintf("%04x", c.USB.PID)},
		Power: &xmlPower{
			Maximum: fmt.Sprintf("%02x", c.USB.MaxPower),
			Self:    boolString(mcp2210.PowerSelf == c.USB.PowerMode),
		},
		RemoteWakeup: &xmlRemoteWakeup{
			Capable: boolString(c.USB.RemoteWakeup),
			Enabled: boolString(c.Chip.RemoteWakeup),
		},
		Pins: &xmlPins{
			GP0:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[0]))},
			GP1:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[1]))},
			GP2:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[2]))},
			GP3:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[3]))},
			GP4:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[4]))},
			GP5:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[5]))},
			GP6:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[6]))},
			GP7:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[7]))},
			GP8:   &xmlPinMode{Mode: strconv.Itoa(int(c.Chip.GP[8]))},
			GPDir: &xmlHexValue{Value: fmt.Sprintf("%02x", c.Chip.GPDir)},
			GPOut: &xmlHexValue{Value: fmt.Sprintf("%02x", c.Chip.GPOut)},
		},
		Interrupt: &xmlInterrupt{Mode: strconv.Itoa(int(c.Chip.IntMode))},
		SPIBus:    &xmlSPIBus{Captive: boolString(c.Chip.SPIBusCaptive)},
		SPI: &xmlSPI{
			BitRate:  strconv.FormatUint(uint64(c.SPI.BitRate), 10),
			Mode:     strconv.Itoa(int(c.SPI.Mode)),
			ActiveCS: strconv.Itoa(int(c.SPI.ActiveCS)),
			IdleCS:   strconv.Itoa(int(c.SPI.IdleCS)),
			CSToData: strconv.Itoa(int(c.SPI.CSToDataDelay)),
			DataToCS: strconv.Itoa(int(c.SPI.DataToCSDelay)),
			ByteDly:  strconv.Itoa(int(c.SPI.InterByteDelay)),
			NBytes:   strconv.Itoa(int(c.SPI.BytesPerTransaction)),
		},
	}

	if _, err := io.WriteString(w, xml.Header); nil != err {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); nil != err {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
