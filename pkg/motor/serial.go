package motor

import (
	"fmt"

	serial "go.bug.st/serial"
)

// OpenSerial opens the motor controller port in 8N1 mode.
func OpenSerial(dev string, baud int) (serial.Port, error) {
	p, err := serial.Open(dev, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return p, nil
}
