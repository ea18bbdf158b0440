package midiport

import (
	"log"

	"github.com/hypebeast/go-osc/osc"
)

// OscSink forwards MIDI messages as OSC packets, so a software synth
// listening on UDP can act as an output module.
type OscSink struct {
	client *osc.Client
}

// NewOscSink creates a sink sending to the given host and port.
func NewOscSink(host string, port int) *OscSink {
	return &OscSink{client: osc.NewClient(host, port)}
}

func (o *OscSink) SendShort(status, data1, data2 uint8) error {
	msg := osc.NewMessage("/midi/short")
	msg.Append(int32(status))
	msg.Append(int32(data1))
	msg.Append(int32(data2))
	if err := o.client.Send(msg); err != nil {
		log.Printf("OSC send error: %v", err)
		return err
	}
	return nil
}

func (o *OscSink) SendLong(data []byte) error {
	msg := osc.NewMessage("/midi/long")
	msg.Append(data)
	if err := o.client.Send(msg); err != nil {
		log.Printf("OSC send error: %v", err)
		return err
	}
	return nil
}

func (o *OscSink) Close() error { return nil }
