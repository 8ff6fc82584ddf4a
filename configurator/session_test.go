package configurator

import (
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
)

// fakeDevice is an in-memory DeviceConn that records every call it
// receives. Writes persist into its configuration so verification passes,
// unless the op is listed as silent (reports success without persisting)
// or failing.
type fakeDevice struct {
	cfg    Configuration
	access mcp2210.AccessMode

	calls []string

	writeFail map[string]error
	readFail  map[string]error
	silent    map[string]bool

	gone   bool
	closed bool

	passwordOutcome mcp2210.PasswordStatus
	gotMode         mcp2210.AccessMode
	gotPassword     string
}

func newFakeDevice(cfg Configuration) *fakeDevice {
	return &fakeDevice{
		cfg:       cfg,
		writeFail: map[string]error{},
		readFail:  map[string]error{},
		silent:    map[string]bool{},
	}
}

func (f *fakeDevice) read(name string) error {
	f.calls = append(f.calls, name)
	return f.readFail[name]
}

func (f *fakeDevice) write(name string) error {
	f.calls = append(f.calls, name)
	return f.writeFail[name]
}

func (f *fakeDevice) ManufacturerDesc() (string, error) {
	return f.cfg.Manufacturer, f.read("read manufacturer")
}

func (f *fakeDevice) WriteManufacturerDesc(s string) error {
	err := f.write("write manufacturer")
	if nil == err && !f.silent["write manufacturer"] {
		f.cfg.Manufacturer = s
	}
	return err
}

func (f *fakeDevice) ProductDesc() (string, error) {
	return f.cfg.Product, f.read("read product")
}

func (f *fakeDevice) WriteProductDesc(s string) error {
	err := f.write("write product")
	if nil == err && !f.silent["write product"] {
		f.cfg.Product = s
	}
	return err
}

func (f *fakeDevice) USBParameters() (mcp2210.USBParameters, error) {
	return f.cfg.USB, f.read("read usb")
}

func (f *fakeDevice) WriteUSBParameters(p mcp2210.USBParameters) error {
	err := f.write("write usb")
	if nil == err && !f.silent["write usb"] {
		f.cfg.USB = p
	}
	return err
}

func (f *fakeDevice) NVChipSettings() (mcp2210.ChipSettings, error) {
	return f.cfg.Chip, f.read("read chip")
}

func (f *fakeDevice) WriteNVChipSettings(s mcp2210.ChipSettings, mode mcp2210.AccessMode, password string) error {
	f.gotMode = mode
	f.gotPassword = password
	err := f.write("write chip")
	if nil == err && !f.silent["write chip"] {
		f.cfg.Chip = s
	}
	return err
}

func (f *fakeDevice) NVSPISettings() (mcp2210.SPISettings, error) {
	return f.cfg.SPI, f.read("read spi")
}

func (f *fakeDevice) WriteNVSPISettings(s mcp2210.SPISettings) error {
	err := f.write("write spi")
	if nil == err && !f.silent["write spi"] {
		f.cfg.SPI = s
	}
	return err
}

func (f *fakeDevice) ConfigureChipSettings(mcp2210.ChipSettings) error {
	return f.write("apply chip")
}

func (f *fakeDevice) ConfigureSPISettings(mcp2210.SPISettings) error {
	return f.write("apply spi")
}

func (f *fakeDevice) SPISettings() (mcp2210.SPISettings, error) {
	return f.cfg.SPI, f.read("read volatile spi")
}

func (f *fakeDevice) AccessControlMode() (mcp2210.AccessMode, error) {
	return f.access, f.read("read access")
}

func (f *fakeDevice) UsePassword(password string) (mcp2210.PasswordStatus, error) {
	f.calls = append(f.calls, "use password")
	return f.passwordOutcome, nil
}

func (f *fakeDevice) ChipStatus() (mcp2210.ChipStatus, error) {
	return mcp2210.ChipStatus{BusOwner: 1}, f.read("read status")
}

func (f *fakeDevice) Disconnected() bool { return f.gone }
func (f *fakeDevice) IsOpen() bool       { return !f.closed }
func (f *fakeDevice) Close() error       { f.closed = true; return nil }

// openSession reads the fake's configuration in, as the CLI does right
// after opening the device.
func openSession(dev *fakeDevice) *Session {
	s := NewSession(dev, nil)
	if err := s.ReadDeviceConfiguration(); nil != err {
		panic(err)
	}
	dev.calls = nil
	return s
}

func TestSessionConfigure(t *testing.T) {

	Convey("Given an open session over a fake device", t, func() {

		dev := newFakeDevice(sampleConfiguration())
		s := openSession(dev)

		Convey("An unmodified configuration is a no-op", func() {
			err := s.Configure(false)
			So(err, ShouldEqual, ErrNoChanges)
			So(dev.calls, ShouldBeEmpty)
		})

		Convey("An invalid configuration never reaches the device", func() {
			edited := s.Edited()
			edited.USB.VID = 0
			So(s.SetEdited(edited), ShouldBeNil)

			err := s.Configure(false)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "vendor ID")
			So(dev.calls, ShouldBeEmpty)
		})

		Convey("A successful run writes, verifies and refreshes the baseline", func() {
			edited := s.Edited()
			edited.Manufacturer = "Someone Else"
			edited.SPI.BitRate = 6000000
			So(s.SetEdited(edited), ShouldBeNil)

			So(s.Configure(false), ShouldBeNil)
			So(s.Baseline(), ShouldResemble, edited)
			So(dev.calls[0], ShouldEqual, "write manufacturer")
			So(dev.calls[1], ShouldEqual, "write spi")
		})

		Convey("The first failing task stops the run without rollback", func() {
			dev.writeFail["write product"] = fmt.Errorf("NVRAM write failure")

			edited := s.Edited()
			edited.Manufacturer = "Someone Else"
			edited.Product = "Something Else"
			edited.USB.PID = 0xBEEF
			So(s.SetEdited(edited), ShouldBeNil)

			err := s.Configure(false)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to write product descriptor")
			So(err.Error(), ShouldContainSubstring, "– NVRAM write failure")

			// the manufacturer write happened and stuck; nothing after the
			// failing task was attempted
			So(dev.calls, ShouldResemble, []string{"write manufacturer", "write product"})
			So(dev.cfg.Manufacturer, ShouldEqual, "Someone Else")
			So(dev.cfg.USB.PID, ShouldNotEqual, 0xBEEF)
		})

		Convey("A write that does not persist fails verification", func() {
			dev.silent["write chip"] = true

			edited := s.Edited()
			edited.Chip.GPOut = 0x55
			So(s.SetEdited(edited), ShouldBeNil)

			err := s.Configure(false)
			So(err, ShouldEqual, ErrVerification)
			So(s.Baseline(), ShouldResemble, sampleConfiguration())
		})

		Convey("A disconnection takes precedence over the task error", func() {
			dev.writeFail["write manufacturer"] = fmt.Errorf("transfer failed")
			dev.gone = true

			edited := s.Edited()
			edited.Manufacturer = "Someone Else"
			So(s.SetEdited(edited), ShouldBeNil)

			err := s.Configure(false)
			So(errors.Is(err, ErrDisconnected), ShouldBeTrue)
		})

		Convey("Applies run after a successful verify", func() {
			edited := s.Edited()
			edited.Chip.GPOut = 0x55
			So(s.SetEdited(edited), ShouldBeNil)

			So(s.Configure(true), ShouldBeNil)
			So(dev.calls[len(dev.calls)-1], ShouldEqual, "apply chip")
		})

		Convey("A closed device refuses the run", func() {
			dev.closed = true
			So(errors.Is(s.Configure(false), mcp2210.ErrClosed), ShouldBeTrue)
		})
	})
}

func TestSessionReadAggregation(t *testing.T) {

	Convey("Given a device where several reads fail", t, func() {

		dev := newFakeDevice(sampleConfiguration())
		dev.readFail["read manufacturer"] = fmt.Errorf("manufacturer read failed")
		dev.readFail["read usb"] = fmt.Errorf("usb read failed")

		s := NewSession(dev, nil)
		err := s.ReadDeviceConfiguration()

		Convey("Every failure is reported as a bulleted line", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to read device configuration")
			So(err.Error(), ShouldContainSubstring, "– manufacturer read failed")
			So(err.Error(), ShouldContainSubstring, "– usb read failed")
		})
	})
}

func TestSessionAccessControl(t *testing.T) {

	Convey("Given a password-protected device", t, func() {

		dev := newFakeDevice(sampleConfiguration())
		dev.access = mcp2210.ACPassword
		s := openSession(dev)

		edited := s.Edited()
		edited.Chip.GPOut = 0x55
		So(s.SetEdited(edited), ShouldBeNil)

		Convey("Writes are refused until the password is presented", func() {
			So(s.Configure(false), ShouldEqual, ErrPasswordRequired)
		})

		Convey("A completed submission unlocks writes and is threaded through", func() {
			dev.passwordOutcome = mcp2210.PasswordCompleted
			st, err := s.UsePassword("s3cret")
			So(err, ShouldBeNil)
			So(st, ShouldEqual, mcp2210.PasswordCompleted)

			So(s.Configure(false), ShouldBeNil)
			So(dev.gotMode, ShouldEqual, mcp2210.ACPassword)
			So(dev.gotPassword, ShouldEqual, "s3cret")
		})

		Convey("A blocked outcome short-circuits later submissions", func() {
			dev.passwordOutcome = mcp2210.PasswordBlocked
			st, err := s.UsePassword("wrong")
			So(err, ShouldBeNil)
			So(st, ShouldEqual, mcp2210.PasswordBlocked)

			dev.calls = nil
			st, err = s.UsePassword("still wrong")
			So(err, ShouldBeNil)
			So(st, ShouldEqual, mcp2210.PasswordBlocked)
			So(dev.calls, ShouldBeEmpty)
		})
	})

	Convey("Given a permanently locked device", t, func() {

		dev := newFakeDevice(sampleConfiguration())
		dev.access = mcp2210.ACLocked
		s := openSession(dev)

		Convey("Edits that differ from the baseline are refused", func() {
			edited := s.Edited()
			edited.Product = "Something Else"
			So(s.SetEdited(edited), ShouldEqual, ErrAccessLocked)
		})

		Convey("Re-installing the unchanged baseline is allowed", func() {
			So(s.SetEdited(s.Edited()), ShouldBeNil)
		})
	})
}

func TestSessionBitRateProbe(t *testing.T) {

	Convey("Given an open session", t, func() {

		dev := newFakeDevice(sampleConfiguration())
		s := openSession(dev)

		Convey("The probe error is wrapped in the operation message", func() {
			dev.readFail["read volatile spi"] = fmt.Errorf("transfer failed")

			_, err := s.NearestCompatibleBitRate(5000)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to get bit rate")
		})
	})
}
