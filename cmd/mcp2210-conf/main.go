// Command mcp2210-conf reads, edits and permanently writes the
// configuration stored in the OTP NVRAM of an MCP2210 USB-to-SPI bridge.
//
// With no action flags it prints the stored configuration. NVRAM writes
// are one-time-programmable: the -write action asks for confirmation
// unless -yes is given.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	mcp2210 "github.com/samuelfmlourenco/mcp2210-conf"
	"github.com/samuelfmlourenco/mcp2210-conf/configurator"
)

func main() {
	log := logrus.New()
	if err := run(log); nil != err {
		log.Fatal(err)
	}
}

// settings resolves defaults from an optional config file and the
// environment (MCP2210CONF_VID, MCP2210CONF_LOG_LEVEL, ...), which the
// command line flags then override.
func settings() *viper.Viper {

	v := viper.New()
	v.SetDefault("vid", fmt.Sprintf("%04x", mcp2210.VID))
	v.SetDefault("pid", fmt.Sprintf("%04x", mcp2210.PID))
	v.SetDefault("serial", "")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("mcp2210conf")
	v.AutomaticEnv()

	v.SetConfigName("mcp2210-conf")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); nil == err {
		v.AddConfigPath(home)
	}
	_ = v.ReadInConfig() // a missing config file is not an error

	return v
}

func run(log *logrus.Logger) error {

	v := settings()

	var (
		vidStr   = flag.String("vid", v.GetString("vid"), "vendor ID of the device to open (hex)")
		pidStr   = flag.String("pid", v.GetString("pid"), "product ID of the device to open (hex)")
		serial   = flag.String("serial", v.GetString("serial"), "serial number of the device to open")
		logLevel = flag.String("log-level", v.GetString("log_level"), "log level (debug, info, warn, error)")
		loadFile = flag.String("load", "", "load an XML configuration file over the stored configuration")
		saveFile = flag.String("save", "", "save the configuration to an XML file")
		write    = flag.Bool("write", false, "write the configuration to the device NVRAM (permanent)")
		apply    = flag.Bool("apply", false, "with -write, also apply changed settings to volatile memory")
		yes      = flag.Bool("yes", false, "skip the write confirmation prompt")
		password = flag.String("password", "", "submit the NVRAM access password")
		status   = flag.Bool("status", false, "print the device status")
		bitrate  = flag.Uint("bitrate", 0, "probe for the supported bit rate nearest to this one (Hz)")
	)
	flag.Parse()

	if level, err := logrus.ParseLevel(*logLevel); nil == err {
		log.SetLevel(level)
	} else {
		return fmt.Errorf("invalid log level %q", *logLevel)
	}

	vid, err := parseID("vid", *vidStr)
	if nil != err {
		return err
	}
	pid, err := parseID("pid", *pidStr)
	if nil != err {
		return err
	}

	dev, err := mcp2210.Open(vid, pid, *serial)
	if nil != err {
		if errors.Is(err, mcp2210.ErrTransportInit) {
			// no recovery path: abort the whole process
			log.Fatalf("could not initialize the HID transport: %v", err)
		}
		return err
	}

	session := configurator.NewSession(dev, log)
	defer session.Close()

	if err := session.ReadDeviceConfiguration(); nil != err {
		return err
	}
	log.WithFields(logrus.Fields{
		"vid":    fmt.Sprintf("%04x", vid),
		"pid":    fmt.Sprintf("%04x", pid),
		"access": session.AccessMode().String(),
	}).Info("device opened")

	if "" != *password {
		st, err := session.UsePassword(*password)
		if nil != err {
			return err
		}
		switch st {
		case mcp2210.PasswordCompleted:
			log.Info("password accepted: full NVRAM write access granted")
		case mcp2210.PasswordBlocked:
			return fmt.Errorf("password not accepted and access is temporarily blocked: disconnect and reconnect the device, then try again")
		case mcp2210.PasswordRejected:
			return fmt.Errorf("full NVRAM write access was rejected")
		case mcp2210.PasswordWrong:
			return fmt.Errorf("password not accepted")
		}
	}

	if *status {
		st, err := session.Status()
		if nil != err {
			return err
		}
		fmt.Printf("SPI bus owner:          %d\n", st.BusOwner)
		fmt.Printf("Bus release pending:    %t\n", st.BusReleasePending)
		fmt.Printf("Password attempts:      %d\n", st.PasswordAttempts)
		fmt.Printf("Password guessed:       %t\n", st.PasswordGuessed)
		return nil
	}

	if 0 != *bitrate {
		rate, err := session.NearestCompatibleBitRate(uint32(*bitrate))
		if nil != err {
			return err
		}
		fmt.Printf("nearest supported bit rate: %d Hz\n", rate)
		return nil
	}

	if "" != *loadFile {
		f, err := os.Open(*loadFile)
		if nil != err {
			return fmt.Errorf("could not read from %s: %v", *loadFile, err)
		}
		err = session.LoadConfiguration(f)
		f.Close()
		if nil != err {
			return err
		}
		log.WithField("file", *loadFile).Info("configuration loaded")
	}

	if "" != *saveFile {
		f, err := os.Create(*saveFile)
		if nil != err {
			return fmt.Errorf("could not write to %s: %v", *saveFile, err)
		}
		err = session.SaveConfiguration(f)
		if cerr := f.Close(); nil == err {
			err = cerr
		}
		if nil != err {
			return err
		}
		log.WithField("file", *saveFile).Info("configuration saved")
	}

	if *write {
		if !*yes && !confirm() {
			log.Info("write canceled")
			return nil
		}
		err := session.Configure(*apply)
		switch {
		case errors.Is(err, configurator.ErrNoChanges):
			log.Info("no changes were effected, because no values were modified")
		case nil != err:
			return fmt.Errorf("the device configuration could not be completed: %w", err)
		default:
			log.Info("device was successfully configured")
		}
		return nil
	}

	printConfiguration(session.Baseline(), session.AccessMode())
	return nil
}

// confirm prompts for the permanence warning and returns whether the user
// agreed.
func confirm() bool {
	fmt.Print("This will write the changes to the OTP ROM of your device. These changes will be permanent.\nDo you wish to proceed? [y/N] ")
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return "y" == answer || "yes" == answer
}

func parseID(name, s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if nil != err || 0 == v {
		return 0, fmt.Errorf("invalid %s %q: expected a nonzero 16-bit hexadecimal value", name, s)
	}
	return uint16(v), nil
}

func printConfiguration(c configurator.Configuration, access mcp2210.AccessMode) {
	fmt.Printf("Manufacturer:        %s\n", c.Manufacturer)
	fmt.Printf("Product:             %s\n", c.Product)
	fmt.Printf("VID:                 %04x\n", c.USB.VID)
	fmt.Printf("PID:                 %04x\n", c.USB.PID)
	fmt.Printf("Max power:           %d mA (0x%02x)\n", mcp2210.MilliampsFromMaxPower(c.USB.MaxPower), c.USB.MaxPower)
	fmt.Printf("Power mode:          %s\n", powerModeText(c.USB.PowerMode))
	fmt.Printf("Remote wakeup:       capable=%t enabled=%t\n", c.USB.RemoteWakeup, c.Chip.RemoteWakeup)
	for i, m := range c.Chip.GP {
		fmt.Printf("GP%d:                 %s\n", i, pinModeText(m))
	}
	fmt.Printf("GPIO direction:      %02x\n", c.Chip.GPDir)
	fmt.Printf("GPIO default output: %02x\n", c.Chip.GPOut)
	fmt.Printf("Interrupt mode:      %d\n", c.Chip.IntMode)
	fmt.Printf("SPI bus captive:     %t\n", c.Chip.SPIBusCaptive)
	fmt.Printf("SPI bit rate:        %d Hz\n", c.SPI.BitRate)
	fmt.Printf("SPI mode:            %d\n", c.SPI.Mode)
	fmt.Printf("Access mode:         %s\n", access.String())
}

func powerModeText(m mcp2210.PowerMode) string {
	if mcp2210.PowerSelf == m {
		return "self-powered"
	}
	return "bus-powered"
}

func pinModeText(m mcp2210.PinMode) string {
	switch m {
	case mcp2210.PinGPIO:
		return "GPIO"
	case mcp2210.PinChipSelect:
		return "chip select"
	case mcp2210.PinDedicated:
		return "dedicated function"
	}
	return "unknown"
}
