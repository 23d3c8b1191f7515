package supercard

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// LinkBus drives the cartridge through a small framed protocol spoken
// by a stub running on the console, over a serial port. Frames are a
// single command letter, a big-endian address, and an optional payload;
// the stub answers with the read value or a one byte ack.
//
// Since Bus accessors cannot return errors inline, the first transport
// failure is latched and every later access becomes a no-op; the
// controller picks the error up once the operation unwinds. A failed
// link stays failed, reconnect to recover.

const (
	linkReadROM   = 'R' // addr -> 2 byte value
	linkWriteROM  = 'W' // addr + 2 byte value -> ack
	linkReadSRAM  = 'r' // addr -> 1 byte value
	linkWriteSRAM = 'w' // addr + 1 byte value -> ack
	linkGetOwner  = 'o' // -> 1 byte owner
	linkSetOwner  = 'O' // 1 byte owner -> ack
	linkSlowMode  = 'T' // -> ack

	linkAck = 0x06
)

const linkBaudRate = 115200

type LinkBus struct {
	port io.ReadWriteCloser
	err  error
}

func NewLinkBus(port io.ReadWriteCloser) *LinkBus {
	return &LinkBus{port: port}
}

// ListLinkPorts returns the names of USB serial ports that could carry
// a console link.
func ListLinkPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range ports {
		if p.IsUSB {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// ConnectLink opens the named serial port, or the first USB serial port
// when device is "any".
func ConnectLink(device string) (*LinkBus, error) {
	if device == "" || device == "any" {
		names, err := ListLinkPorts()
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no usable serial ports found")
		}
		device = names[0]
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: linkBaudRate})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}
	return NewLinkBus(port), nil
}

func (l *LinkBus) Close() error {
	return l.port.Close()
}

// Drive f until the whole slice is consumed, latching the first error.
// Skips entirely once an error is latched.
func (l *LinkBus) loopFull(b []byte, f func([]byte) (int, error)) {
	if l.err != nil {
		return
	}
	for len(b) > 0 {
		n, err := f(b)
		if err != nil {
			l.err = err
			return
		}
		if n <= 0 {
			l.err = fmt.Errorf("link transfer stalled")
			return
		}
		b = b[n:]
	}
}

// Send one frame and read back replyLen bytes.
func (l *LinkBus) command(cmd byte, addr uint32, payload []byte, reply []byte) {
	frame := make([]byte, 0, 5+len(payload))
	frame = append(frame, cmd)
	frame = binary.BigEndian.AppendUint32(frame, addr)
	frame = append(frame, payload...)
	l.loopFull(frame, l.port.Write)
	l.loopFull(reply, l.port.Read)
}

func (l *LinkBus) ack(cmd byte, addr uint32, payload []byte) {
	var rb [1]byte
	l.command(cmd, addr, payload, rb[:])
	if l.err == nil && rb[0] != linkAck {
		l.err = fmt.Errorf("link stub refused command %q", cmd)
	}
}

func (l *LinkBus) ReadROM16(addr uint32) uint16 {
	var rb [2]byte
	l.command(linkReadROM, addr, nil, rb[:])
	return binary.BigEndian.Uint16(rb[:])
}

func (l *LinkBus) WriteROM16(addr uint32, value uint16) {
	var pl [2]byte
	binary.BigEndian.PutUint16(pl[:], value)
	l.ack(linkWriteROM, addr, pl[:])
}

func (l *LinkBus) ReadSRAM8(off uint32) uint8 {
	var rb [1]byte
	l.command(linkReadSRAM, off, nil, rb[:])
	return rb[0]
}

func (l *LinkBus) WriteSRAM8(off uint32, value uint8) {
	l.ack(linkWriteSRAM, off, []byte{value})
}

func (l *LinkBus) CartOwner() BusOwner {
	var rb [1]byte
	l.command(linkGetOwner, 0, nil, rb[:])
	return BusOwner(rb[0])
}

func (l *LinkBus) SetCartOwner(owner BusOwner) {
	l.ack(linkSetOwner, 0, []byte{byte(owner)})
}

func (l *LinkBus) UseSlowTiming() {
	l.ack(linkSlowMode, 0, nil)
}

func (l *LinkBus) Err() error {
	return l.err
}
