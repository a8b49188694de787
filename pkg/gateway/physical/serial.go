package physical

import "go.bug.st/serial"

// DefaultBaudRate matches the controller/gateway link's fixed serial rate
// when taptap-observe is wired directly to the RS-485 bus instead of
// through the TCP bridge.
const DefaultBaudRate = 115200

// SerialConnection is a Connection backed by a local serial port.
type SerialConnection struct {
	port serial.Port
}

// OpenSerial opens a local serial port at DefaultBaudRate, 8N1. The link is
// always read-write: a direct serial tap has no bridge-side readonly mode
// to honor.
func OpenSerial(portName string) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	return &SerialConnection{port: port}, nil
}

// ListPorts enumerates the local serial ports the host OS knows about, for
// the list-serial-ports subcommand.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (c *SerialConnection) Read(buf []byte) (int, error) {
	return c.port.Read(buf)
}

func (c *SerialConnection) Write(buf []byte) (int, error) {
	return c.port.Write(buf)
}

func (c *SerialConnection) Close() error {
	return c.port.Close()
}
