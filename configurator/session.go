package configurator

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
)

// Session-level outcomes callers branch on.
var (
	// ErrDisconnected reports that the device vanished mid-run; the
	// session is disabled until the device is reconnected and reopened.
	ErrDisconnected = errors.New("device disconnected: reconnect it and try again")

	// ErrNoChanges is the no-op outcome: the edited configuration equals
	// the device baseline, so nothing was planned or executed.
	ErrNoChanges = errors.New("no changes were effected, because no values were modified")

	// ErrVerification reports that the post-write readback does not match
	// the edited configuration, even though every write completed.
	ErrVerification = errors.New("failed verification")

	// ErrAccessLocked reports an attempt to modify a permanently locked
	// chip.
	ErrAccessLocked = errors.New("the chip's NVRAM is permanently locked")

	// ErrPasswordRequired reports that NVRAM writes are gated by a
	// password that has not been successfully submitted this session.
	ErrPasswordRequired = errors.New("the chip's NVRAM is password protected: enter the password first")
)

// DeviceConn is the subset of the device session the configurator drives.
// *mcp2210.MCP2210 satisfies it; tests substitute fakes.
type DeviceConn interface {
	ManufacturerDesc() (string, error)
	WriteManufacturerDesc(string) error
	ProductDesc() (string, error)
	WriteProductDesc(string) error
	USBParameters() (mcp2210.USBParameters, error)
	WriteUSBParameters(mcp2210.USBParameters) error
	NVChipSettings() (mcp2210.ChipSettings, error)
	WriteNVChipSettings(mcp2210.ChipSettings, mcp2210.AccessMode, string) error
	NVSPISettings() (mcp2210.SPISettings, error)
	WriteNVSPISettings(mcp2210.SPISettings) error
	ConfigureChipSettings(mcp2210.ChipSettings) error
	ConfigureSPISettings(mcp2210.SPISettings) error
	SPISettings() (mcp2210.SPISettings, error)
	AccessControlMode() (mcp2210.AccessMode, error)
	UsePassword(string) (mcp2210.PasswordStatus, error)
	ChipStatus() (mcp2210.ChipStatus, error)
	Disconnected() bool
	IsOpen() bool
	Close() error
}

// Session orchestrates configuration runs against one open device: it
// holds the last configuration confirmed to be stored on the chip (the
// baseline), the edited working copy, the access control mode, and the
// password submitted this session.
type Session struct {
	dev DeviceConn
	log logrus.FieldLogger

	device Configuration // baseline, populated on open and after verify
	edited Configuration // working copy
	access mcp2210.AccessMode

	password string // retained after a completed submission
	unlocked bool
	blocked  bool // password attempts blocked until reconnect
}

// NewSession wraps an open device connection. A nil logger falls back to
// the logrus standard logger.
func NewSession(dev DeviceConn, log logrus.FieldLogger) *Session {
	if nil == log {
		log = logrus.StandardLogger()
	}
	return &Session{dev: dev, log: log}
}

// ReadDeviceConfiguration reads every NVRAM section and the access control
// mode from the device and installs the result as both the baseline and
// the edited configuration. All per-section failures are reported in one
// aggregated error.
func (s *Session) ReadDeviceConfiguration() error {

	cfg, access, err := s.readAll()
	if nil != err {
		return s.opError("read device configuration", err)
	}

	s.device = cfg
	s.edited = cfg
	s.access = access
	s.log.WithField("access", access.String()).Debug("device configuration read")
	return nil
}

// readAll gathers the full stored configuration, accumulating every
// failure rather than stopping at the first.
func (s *Session) readAll() (Configuration, mcp2210.AccessMode, error) {

	var cfg Configuration
	var access mcp2210.AccessMode
	var result *multierror.Error

	if v, err := s.dev.ManufacturerDesc(); nil != err {
		result = multierror.Append(result, err)
	} else {
		cfg.Manufacturer = v
	}
	if v, err := s.dev.ProductDesc(); nil != err {
		result = multierror.Append(result, err)
	} else {
		cfg.Product = v
	}
	if v, err := s.dev.USBParameters(); nil != err {
		result = multierror.Append(result, err)
	} else {
		cfg.USB = v
	}
	if v, err := s.dev.NVChipSettings(); nil != err {
		result = multierror.Append(result, err)
	} else {
		cfg.Chip = v
	}
	if v, err := s.dev.NVSPISettings(); nil != err {
		result = multierror.Append(result, err)
	} else {
		cfg.SPI = v
	}
	if v, err := s.dev.AccessControlMode(); nil != err {
		result = multierror.Append(result, err)
	} else {
		access = v
	}

	return cfg, access, result.ErrorOrNil()
}

// Baseline returns the last configuration confirmed to be stored on the
// device.
func (s *Session) Baseline() Configuration { return s.device }

// Edited returns the working copy.
func (s *Session) Edited() Configuration { return s.edited }

// AccessMode returns the device's NVRAM access control mode as of the
// last read.
func (s *Session) AccessMode() mcp2210.AccessMode { return s.access }

// SetEdited replaces the working copy. A permanently locked chip is
// read-only: edits that differ from the baseline are refused.
func (s *Session) SetEdited(cfg Configuration) error {
	if mcp2210.ACLocked == s.access && cfg != s.device {
		return ErrAccessLocked
	}
	s.edited = cfg
	return nil
}

// Revert discards the working copy, restoring the baseline.
func (s *Session) Revert() { s.edited = s.device }

// LoadConfiguration merges an XML configuration document into the working
// copy.
func (s *Session) LoadConfiguration(r io.Reader) error {
	if mcp2210.ACLocked == s.access {
		return ErrAccessLocked
	}
	cfg := s.edited
	if err := ReadConfiguration(r, &cfg); nil != err {
		return err
	}
	s.edited = cfg
	return nil
}

// SaveConfiguration writes the working copy as an XML configuration
// document.
func (s *Session) SaveConfiguration(w io.Writer) error {
	return WriteConfiguration(w, s.edited)
}

// UsePassword submits a candidate password. A completed submission is
// retained for the NVRAM writes of later runs; a blocked outcome is final
// for this session and short-circuits further submissions.
func (s *Session) UsePassword(password string) (mcp2210.PasswordStatus, error) {

	if s.blocked {
		return mcp2210.PasswordBlocked, nil
	}

	status, err := s.dev.UsePassword(password)
	if err := s.opError("use password", err); nil != err {
		return status, err
	}

	switch status {
	case mcp2210.PasswordCompleted:
		s.password = password
		s.unlocked = true
	case mcp2210.PasswordBlocked:
		s.blocked = true
	}
	return status, nil
}

// Configure runs the full write sequence: validate, diff, plan, execute
// in order, verify. The first failing task stops the run; completed tasks
// are not rolled back. On success the edited configuration becomes the
// new baseline.
func (s *Session) Configure(applyImmediately bool) error {

	if !s.dev.IsOpen() {
		return mcp2210.ErrClosed
	}
	if err := s.edited.Validate(); nil != err {
		return err
	}
	if s.edited == s.device {
		return ErrNoChanges
	}
	if mcp2210.ACLocked == s.access {
		return ErrAccessLocked
	}
	if mcp2210.ACPassword == s.access && !s.unlocked {
		return ErrPasswordRequired
	}

	tasks := PlanTasks(s.device, s.edited, applyImmediately)
	for _, t := range tasks {
		s.log.WithField("task", t.String()).Debug("executing task")
		if err := s.run(t); nil != err {
			return err
		}
	}
	return nil
}

// run executes a single task from the plan.
func (s *Session) run(t Task) error {

	switch t {
	case TaskWriteManufacturerDesc:
		return s.opError(t.String(), s.dev.WriteManufacturerDesc(s.edited.Manufacturer))
	case TaskWriteProductDesc:
		return s.opError(t.String(), s.dev.WriteProductDesc(s.edited.Product))
	case TaskWriteUSBParameters:
		return s.opError(t.String(), s.dev.WriteUSBParameters(s.edited.USB))
	case TaskWriteChipSettings:
		mode, password := s.writeCredentials()
		return s.opError(t.String(), s.dev.WriteNVChipSettings(s.edited.Chip, mode, password))
	case TaskWriteSPISettings:
		return s.opError(t.String(), s.dev.WriteNVSPISettings(s.edited.SPI))
	case TaskVerify:
		return s.verify()
	case TaskApplyChipSettings:
		return s.opError(t.String(), s.dev.ConfigureChipSettings(s.edited.Chip))
	case TaskApplySPISettings:
		return s.opError(t.String(), s.dev.ConfigureSPISettings(s.edited.SPI))
	}
	return fmt.Errorf("unknown task %d", t)
}

// writeCredentials chooses the access control mode and password to send
// with an NVRAM chip settings write: a password-protected chip keeps its
// protection and its session-submitted password, anything else stays
// fully accessible.
func (s *Session) writeCredentials() (mcp2210.AccessMode, string) {
	if mcp2210.ACPassword == s.access {
		return mcp2210.ACPassword, s.password
	}
	return mcp2210.ACNone, ""
}

// verify re-reads the full stored configuration and compares it with the
// edited one. A failed read propagates as a read error; a mismatch is the
// distinct verification failure. Either way the baseline is refreshed
// with whatever the device reported.
func (s *Session) verify() error {

	cfg, access, err := s.readAll()
	if nil != err {
		return s.opError("read device configuration", err)
	}

	s.device = cfg
	s.access = access
	if cfg != s.edited {
		return ErrVerification
	}
	return nil
}

// NearestCompatibleBitRate probes the device for the supported rate
// nearest to the requested one. The probe temporarily rewrites the live
// SPI settings; no other device operation may run concurrently.
func (s *Session) NearestCompatibleBitRate(bitrate uint32) (uint32, error) {

	rate, err := mcp2210.NearestCompatibleBitRate(s.dev, bitrate)
	if err := s.opError("get bit rate", err); nil != err {
		return 0, err
	}
	return rate, nil
}

// Status queries the device's live status.
func (s *Session) Status() (mcp2210.ChipStatus, error) {

	status, err := s.dev.ChipStatus()
	if err := s.opError("retrieve device status", err); nil != err {
		return mcp2210.ChipStatus{}, err
	}
	return status, nil
}

// Close releases the underlying device.
func (s *Session) Close() error { return s.dev.Close() }

// opError converts an operation failure into the user-facing aggregated
// message. A detected disconnection takes precedence over the generic
// aggregation and disables the session.
func (s *Session) opError(op string, err error) error {

	if nil == err {
		return nil
	}
	if s.dev.Disconnected() {
		s.log.WithField("op", op).Warn("device disconnected")
		return ErrDisconnected
	}
	return fmt.Errorf("failed to %s; the operation returned the following error(s):\n– %s", op, bulletList(err))
}

// bulletList renders an error (possibly a multierror) as a bullet-joined
// list, one line per underlying failure.
func bulletList(err error) string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		parts := make([]string, len(merr.Errors))
		for i, e := range merr.Errors {
			parts[i] = e.Error()
		}
		return strings.Join(parts, "\n– ")
	}
	return err.Error()
}
