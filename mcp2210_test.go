package mcp2210_test

import (
	"errors"
	"testing"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
	"github.com/samuelfmlourenco/mcp2210-conf/mcp2210test"
)

func TestDescriptorWriteRead(t *testing.T) {

	dev := mcp2210.New(mcp2210test.New())

	if err := dev.WriteManufacturerDesc("ACME Corp."); nil != err {
		t.Fatalf("WriteManufacturerDesc(): %v", err)
	}
	if err := dev.WriteProductDesc("Widget Bridge"); nil != err {
		t.Fatalf("WriteProductDesc(): %v", err)
	}

	man, err := dev.ManufacturerDesc()
	if nil != err {
		t.Fatalf("ManufacturerDesc(): %v", err)
	}
	if "ACME Corp." != man {
		t.Errorf("manufacturer = %q, want %q", man, "ACME Corp.")
	}
	prd, err := dev.ProductDesc()
	if nil != err {
		t.Fatalf("ProductDesc(): %v", err)
	}
	if "Widget Bridge" != prd {
		t.Errorf("product = %q, want %q", prd, "Widget Bridge")
	}
}

func TestNVChipSettingsWriteRead(t *testing.T) {

	dev := mcp2210.New(mcp2210test.New())

	want := mcp2210.ChipSettings{
		GP:            [mcp2210.NumPins]mcp2210.PinMode{mcp2210.PinChipSelect, mcp2210.PinGPIO, mcp2210.PinDedicated},
		GPDir:         0x0F,
		GPOut:         0xF0,
		IntMode:       mcp2210.IntCountRisingEdges,
		RemoteWakeup:  true,
		SPIBusCaptive: true,
	}
	if err := dev.WriteNVChipSettings(want, mcp2210.ACNone, ""); nil != err {
		t.Fatalf("WriteNVChipSettings(): %v", err)
	}

	got, err := dev.NVChipSettings()
	if nil != err {
		t.Fatalf("NVChipSettings(): %v", err)
	}
	if got != want {
		t.Fatalf("NVChipSettings = %+v, want %+v", got, want)
	}

	mode, err := dev.AccessControlMode()
	if nil != err {
		t.Fatalf("AccessControlMode(): %v", err)
	}
	if mcp2210.ACNone != mode {
		t.Errorf("access mode = %v, want full access", mode)
	}
}

func TestUSBParametersWriteRead(t *testing.T) {

	dev := mcp2210.New(mcp2210test.New())

	want := mcp2210.USBParameters{
		VID:          0x1A6F,
		PID:          0xC001,
		MaxPower:     mcp2210.MaxPowerFromMilliamps(200),
		PowerMode:    mcp2210.PowerSelf,
		RemoteWakeup: true,
	}
	if err := dev.WriteUSBParameters(want); nil != err {
		t.Fatalf("WriteUSBParameters(): %v", err)
	}

	got, err := dev.USBParameters()
	if nil != err {
		t.Fatalf("USBParameters(): %v", err)
	}
	if got != want {
		t.Fatalf("USBParameters = %+v, want %+v", got, want)
	}
}

func TestNVWriteBlockedWhenLocked(t *testing.T) {

	sim := mcp2210test.New()
	sim.Access = 0x80
	dev := mcp2210.New(sim)

	err := dev.WriteManufacturerDesc("new name")
	var serr *mcp2210.StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected a StatusError, got %v", err)
	}
	if mcp2210.StatusBlocked != serr.Code {
		t.Errorf("status code = 0x%02X, want 0x%02X", serr.Code, mcp2210.StatusBlocked)
	}
}

func TestPasswordFlow(t *testing.T) {

	sim := mcp2210test.New()
	sim.Access = 0x40
	sim.Password = "s3cret"
	dev := mcp2210.New(sim)

	// writes are rejected before the password is presented
	err := dev.WriteNVSPISettings(mcp2210.SPISettings{BitRate: 3000000})
	var serr *mcp2210.StatusError
	if !errors.As(err, &serr) || mcp2210.StatusRejected != serr.Code {
		t.Fatalf("expected rejection before password, got %v", err)
	}

	st, err := dev.UsePassword("wrong")
	if nil != err {
		t.Fatalf("UsePassword(): %v", err)
	}
	if mcp2210.PasswordWrong != st {
		t.Fatalf("status = %v, want PasswordWrong", st)
	}

	st, err = dev.UsePassword("s3cret")
	if nil != err {
		t.Fatalf("UsePassword(): %v", err)
	}
	if mcp2210.PasswordCompleted != st {
		t.Fatalf("status = %v, want PasswordCompleted", st)
	}

	if err := dev.WriteNVSPISettings(mcp2210.SPISettings{BitRate: 3000000}); nil != err {
		t.Fatalf("WriteNVSPISettings() after unlock: %v", err)
	}
}

func TestPasswordBlockedAfterTooManyAttempts(t *testing.T) {

	sim := mcp2210test.New()
	sim.Access = 0x40
	sim.Password = "s3cret"
	dev := mcp2210.New(sim)

	for i := 0; i < 5; i++ {
		st, err := dev.UsePassword("wrong")
		if nil != err {
			t.Fatalf("UsePassword() attempt %d: %v", i, err)
		}
		if mcp2210.PasswordWrong != st {
			t.Fatalf("attempt %d status = %v, want PasswordWrong", i, st)
		}
	}

	// the correct password no longer helps once the chip blocks
	st, err := dev.UsePassword("s3cret")
	if nil != err {
		t.Fatalf("UsePassword(): %v", err)
	}
	if mcp2210.PasswordBlocked != st {
		t.Fatalf("status = %v, want PasswordBlocked", st)
	}
}

func TestShortResponseIsDecodeError(t *testing.T) {

	sim := mcp2210test.New()
	sim.ShortResponse = true
	dev := mcp2210.New(sim)

	_, err := dev.ChipStatus()
	var derr *mcp2210.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected a DecodeError, got %v", err)
	}

	// the very next exchange succeeds
	if _, err := dev.ChipStatus(); nil != err {
		t.Fatalf("ChipStatus() after short response: %v", err)
	}
}

func TestDisconnectionIsSticky(t *testing.T) {

	sim := mcp2210test.New()
	dev := mcp2210.New(sim)

	if _, err := dev.ChipStatus(); nil != err {
		t.Fatalf("ChipStatus(): %v", err)
	}
	if dev.Disconnected() {
		t.Fatal("Disconnected() true before any failure")
	}

	sim.Gone = true
	if _, err := dev.ChipStatus(); !errors.Is(err, mcp2210.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	if !dev.Disconnected() {
		t.Fatal("Disconnected() false after a transport loss")
	}

	// the flag latches: even with the transport back, operations refuse
	sim.Gone = false
	if _, err := dev.ChipStatus(); !errors.Is(err, mcp2210.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected after reattach, got %v", err)
	}
}

func TestClosedDevice(t *testing.T) {

	dev := mcp2210.New(mcp2210test.New())
	if err := dev.Close(); nil != err {
		t.Fatalf("Close(): %v", err)
	}
	if dev.IsOpen() {
		t.Fatal("IsOpen() true after Close()")
	}
	if _, err := dev.ChipStatus(); !errors.Is(err, mcp2210.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
