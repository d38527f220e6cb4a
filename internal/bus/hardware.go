package bus

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// No third-party Go library in the retrieval pack exercises raw SPI/I²C;
// periph.io/x/conn and periph.io/x/host are the real ecosystem choice for
// this surface on Linux (named, not pack-grounded — see DESIGN.md).

// deviceAddress is the vendor control port's fixed I²C address
// (spec.md §4.2, §6: "device address 0x2A").
const deviceAddress uint16 = 0x2A

// Hardware is the production ControlBus: SPI mode 3, 8 bits/word, 10 MHz
// for the packet stream, and a 400 kHz I²C control port for vendor
// configure/power_up/power_down/status primitives (spec.md §4.2).
//
// The vendor command set itself (LEP_* style register writes: AGC
// disable, radiometry enable, manual-FFC shutter mode, FFC normalization,
// video output enable, status polling) is the opaque collaborator
// spec.md §1 places out of scope; Hardware only owns the transport.
type Hardware struct {
	spiConn spi.Conn
	i2cDev  *i2c.Dev

	status func() (systemReady bool, err error)
	power  VendorCommands
}

// VendorCommands is the opaque vendor-SDK surface spec.md §1 treats as a
// collaborator: configure/power_up/power_down/status. A concrete
// implementation issues the vendor's register protocol over i2cDev; it is
// intentionally not specified here.
type VendorCommands interface {
	Configure(dev *i2c.Dev) error
	PowerUp(dev *i2c.Dev) error
	PowerDown(dev *i2c.Dev) error
	Status(dev *i2c.Dev) (systemReady bool, err error)
}

// NewHardware opens the SPI data channel and the I²C control port and
// runs the vendor Configure step. It does not power the sensor up; that
// is PowerOn's job.
func NewHardware(spiPath, i2cPath string, vendor VendorCommands) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bus: periph host init: %w", err)
	}

	spiPort, err := spireg.Open(spiPath)
	if err != nil {
		return nil, fmt.Errorf("bus: open spi %q: %w", spiPath, err)
	}
	conn, err := spiPort.Connect(10*physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		return nil, fmt.Errorf("bus: configure spi mode 3 @10MHz: %w", err)
	}

	i2cBus, err := i2creg.Open(i2cPath)
	if err != nil {
		return nil, fmt.Errorf("bus: open i2c %q: %w", i2cPath, err)
	}
	if err := i2cBus.SetSpeed(400 * physic.KiloHertz); err != nil {
		return nil, fmt.Errorf("bus: set i2c speed 400kHz: %w", err)
	}
	dev := &i2c.Dev{Bus: i2cBus, Addr: deviceAddress}

	if err := vendor.Configure(dev); err != nil {
		return nil, fmt.Errorf("bus: configure camera port: %w", err)
	}

	h := &Hardware{
		spiConn: conn,
		i2cDev:  dev,
		power:   vendor,
		status:  func() (bool, error) { return vendor.Status(dev) },
	}
	return h, nil
}

// PowerOn implements ControlBus.PowerOn (spec.md §4.2, §4.3 cameraEnable).
func (h *Hardware) PowerOn() error {
	if err := h.power.PowerUp(h.i2cDev); err != nil {
		return fmt.Errorf("bus: power up: %w", err)
	}
	time.Sleep(PowerOnSettle)
	if err := pollUntilReady(h.status); err != nil {
		return err
	}
	return nil
}

// PowerOff implements ControlBus.PowerOff.
func (h *Hardware) PowerOff() error {
	if err := h.power.PowerDown(h.i2cDev); err != nil {
		return fmt.Errorf("bus: power down: %w", err)
	}
	return pollUntilReady(h.status)
}

// ReadPacket implements ControlBus.ReadPacket: exactly one 164-byte SPI
// transfer (spec.md §6).
func (h *Hardware) ReadPacket(buf []byte) error {
	if len(buf) != PacketSize {
		return fmt.Errorf("bus: packet buffer must be %d bytes, got %d", PacketSize, len(buf))
	}
	if err := h.spiConn.Tx(nil, buf); err != nil {
		return fmt.Errorf("bus: spi read: %w", err)
	}
	return nil
}

func pollUntilReady(status func() (bool, error)) error {
	for {
		ready, err := status()
		if err != nil {
			return fmt.Errorf("bus: status poll: %w", err)
		}
		if ready {
			return nil
		}
		time.Sleep(PollPeriod)
	}
}
