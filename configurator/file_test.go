package configurator

import (
	"bytes"
	"strings"
	"testing"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
)

func sampleConfiguration() Configuration {
	return Configuration{
		Manufacturer: "ACME Corp.",
		Product:      "Widget Bridge",
		USB: mcp2210.USBParameters{
			VID:          0x1A6F,
			PID:          0xC001,
			MaxPower:     0x32,
			PowerMode:    mcp2210.PowerSelf,
			RemoteWakeup: true,
		},
		Chip: mcp2210.ChipSettings{
			GP:            [mcp2210.NumPins]mcp2210.PinMode{mcp2210.PinChipSelect, mcp2210.PinGPIO, mcp2210.PinDedicated},
			GPDir:         0x0F,
			GPOut:         0xF0,
			IntMode:       mcp2210.IntCountRisingEdges,
			RemoteWakeup:  true,
			SPIBusCaptive: true,
		},
		SPI: mcp2210.SPISettings{
			BitRate:             3000000,
			IdleCS:              0x01FF,
			ActiveCS:            0x0000,
			CSToDataDelay:       5,
			DataToCSDelay:       5,
			InterByteDelay:      1,
			BytesPerTransaction: 4,
			Mode:                1,
		},
	}
}

func TestConfigurationFileRoundTrip(t *testing.T) {

	want := sampleConfiguration()

	var buf bytes.Buffer
	if err := WriteConfiguration(&buf, want); nil != err {
		t.Fatalf("WriteConfiguration(): %v", err)
	}

	var got Configuration
	if err := ReadConfiguration(&buf, &got); nil != err {
		t.Fatalf("ReadConfiguration(): %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got: %+v\nwant: %+v", got, want)
	}
}

func TestReadConfigurationMergesOverExisting(t *testing.T) {

	// a partial document touches only the fields it carries
	const doc = `<mcp2210config>
    <product string="Renamed Bridge"></product>
    <vid value="04d8"></vid>
</mcp2210config>`

	cfg := sampleConfiguration()
	if err := ReadConfiguration(strings.NewReader(doc), &cfg); nil != err {
		t.Fatalf("ReadConfiguration(): %v", err)
	}

	if "Renamed Bridge" != cfg.Product {
		t.Errorf("product = %q, want %q", cfg.Product, "Renamed Bridge")
	}
	if 0x04D8 != cfg.USB.VID {
		t.Errorf("vid = %04x, want 04d8", cfg.USB.VID)
	}
	if "ACME Corp." != cfg.Manufacturer {
		t.Errorf("manufacturer = %q, untouched fields must survive the merge", cfg.Manufacturer)
	}
	if 3000000 != cfg.SPI.BitRate {
		t.Errorf("bit rate = %d, untouched fields must survive the merge", cfg.SPI.BitRate)
	}
}

func TestReadConfigurationBoolForms(t *testing.T) {

	const doc = `<mcp2210config>
    <remotewakeup capable="1" enabled="0"></remotewakeup>
    <spibus captive="false"></spibus>
</mcp2210config>`

	var cfg Configuration
	if err := ReadConfiguration(strings.NewReader(doc), &cfg); nil != err {
		t.Fatalf("ReadConfiguration(): %v", err)
	}
	if !cfg.USB.RemoteWakeup {
		t.Error("capable=\"1\" must parse as true")
	}
	if cfg.Chip.RemoteWakeup {
		t.Error("enabled=\"0\" must parse as false")
	}
	if cfg.Chip.SPIBusCaptive {
		t.Error("captive=\"false\" must parse as false")
	}
}

func TestReadConfigurationErrors(t *testing.T) {

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"zero vid",
			`<mcp2210config><vid value="0000"></vid></mcp2210config>`,
			`in "vid" element`,
		},
		{
			"power beyond chip maximum",
			`<mcp2210config><power maximum="ff"></power></mcp2210config>`,
			`in "power" element`,
		},
		{
			"garbled boolean",
			`<mcp2210config><spibus captive="yes"></spibus></mcp2210config>`,
			`in "spibus" element`,
		},
		{
			"pin mode out of range",
			`<mcp2210config><pins><gp3 mode="5"></gp3></pins></mcp2210config>`,
			`in "gp3" element`,
		},
		{
			"interrupt mode out of range",
			`<mcp2210config><interrupt mode="9"></interrupt></mcp2210config>`,
			`in "interrupt" element`,
		},
		{
			"descriptor too long",
			`<mcp2210config><manufacturer string="` + strings.Repeat("x", 30) + `"></manufacturer></mcp2210config>`,
			`in "manufacturer" element`,
		},
		{
			"bit rate out of range",
			`<mcp2210config><spi bitrate="100"></spi></mcp2210config>`,
			`"bitrate" attribute is invalid`,
		},
		{
			"wrong root element",
			`<notaconfig></notaconfig>`,
			`not a valid MCP2210 configuration file`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Configuration
			err := ReadConfiguration(strings.NewReader(tt.doc), &cfg)
			if nil == err {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestReadConfigurationSyntaxErrorNamesLine(t *testing.T) {

	const doc = "<mcp2210config>\n<vid value=\"04d8\">\n</mcp2210config>"
	var cfg Configuration
	err := ReadConfiguration(strings.NewReader(doc), &cfg)
	if nil == err {
		t.Fatal("expected an error for mismatched tags")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("error %q does not name the offending line", err)
	}
}
