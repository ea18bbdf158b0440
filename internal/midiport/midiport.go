// Package midiport provides the output sinks the playback engine writes
// to. Every sink exposes the two operations the engine needs: a short
// (channel voice) message and a long (SysEx) message.
package midiport

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Sink is one physical or virtual MIDI output.
type Sink interface {
	// SendShort transmits a channel voice message. data2 is ignored for
	// the two-byte statuses (0xC0, 0xD0).
	SendShort(status, data1, data2 uint8) error
	// SendLong transmits a full F0..F7 SysEx byte sequence.
	SendLong(data []byte) error
	Close() error
}

var (
	mutex       sync.Mutex
	devicesOpen = make(map[string]drivers.Out)
)

// Device is a hardware/virtual MIDI output port.
type Device struct {
	name string
	num  int
}

// Devices lists the names of all available MIDI output ports.
func Devices() (devices []string) {
	outs := midi.GetOutPorts()
	for _, out := range outs {
		devices = append(devices, out.String())
	}
	return
}

func filterName(name string) (foundName string, foundNum int, err error) {
	names := Devices()
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return n, i, nil
		}
	}
	for i, n := range names {
		if strings.HasPrefix(strings.ToLower(n), strings.ToLower(name)) {
			return n, i, nil
		}
	}
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), strings.ToLower(name)) {
			return n, i, nil
		}
	}
	return "", -1, fmt.Errorf("could not find device with name %s", name)
}

// OpenDevice resolves a port by (partial) name and opens it. Opening the
// same port twice reuses the existing connection.
func OpenDevice(name string) (*Device, error) {
	var d Device
	var err error
	d.name, d.num, err = filterName(name)
	if err != nil {
		return nil, err
	}
	mutex.Lock()
	defer mutex.Unlock()
	if _, ok := devicesOpen[d.name]; ok {
		return &d, nil
	}
	out, err := midi.FindOutPort(d.name)
	if err != nil {
		return nil, err
	}
	if err = out.Open(); err != nil {
		return nil, err
	}
	devicesOpen[d.name] = out
	return &d, nil
}

func (d *Device) send(data []byte) error {
	mutex.Lock()
	defer mutex.Unlock()
	out, ok := devicesOpen[d.name]
	if !ok {
		return fmt.Errorf("device %s is not open", d.name)
	}
	err := out.Send(data)
	if err != nil {
		log.Printf("MIDI send error for device %s: %v", d.name, err)
	}
	return err
}

func (d *Device) SendShort(status, data1, data2 uint8) error {
	if status&0xF0 == 0xC0 || status&0xF0 == 0xD0 {
		return d.send([]byte{status, data1})
	}
	return d.send([]byte{status, data1, data2})
}

func (d *Device) SendLong(data []byte) error {
	return d.send(data)
}

func (d *Device) Close() error {
	mutex.Lock()
	defer mutex.Unlock()
	if out, ok := devicesOpen[d.name]; ok {
		delete(devicesOpen, d.name)
		return out.Close()
	}
	return nil
}

// CloseAll closes every open device port.
func CloseAll() {
	mutex.Lock()
	defer mutex.Unlock()
	for name, out := range devicesOpen {
		out.Close()
		delete(devicesOpen, name)
	}
}

// Capture is an in-memory sink recording every message, for tests and
// dry runs.
type Capture struct {
	mu       sync.Mutex
	Messages [][]byte
}

func (c *Capture) SendShort(status, data1, data2 uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status&0xF0 == 0xC0 || status&0xF0 == 0xD0 {
		c.Messages = append(c.Messages, []byte{status, data1})
	} else {
		c.Messages = append(c.Messages, []byte{status, data1, data2})
	}
	return nil
}

func (c *Capture) SendLong(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := make([]byte, len(data))
	copy(msg, data)
	c.Messages = append(c.Messages, msg)
	return nil
}

func (c *Capture) Close() error { return nil }

// Drain returns the recorded messages and clears the buffer.
func (c *Capture) Drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.Messages
	c.Messages = nil
	return msgs
}

// Delayed wraps a sink and shifts every message by a fixed delay, for
// syncing hardware and software devices. Sends stay non-blocking.
type Delayed struct {
	Target  Sink
	DelayMS uint32
}

func (d *Delayed) schedule(send func()) {
	if d.DelayMS == 0 {
		send()
		return
	}
	time.AfterFunc(time.Duration(d.DelayMS)*time.Millisecond, send)
}

func (d *Delayed) SendShort(status, data1, data2 uint8) error {
	d.schedule(func() { d.Target.SendShort(status, data1, data2) })
	return nil
}

func (d *Delayed) SendLong(data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)
	d.schedule(func() { d.Target.SendLong(msg) })
	return nil
}

func (d *Delayed) Close() error { return d.Target.Close() }
