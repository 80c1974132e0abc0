package midi

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"fmsynth/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// portScanTimeout bounds port enumeration (CoreMIDI can hang)
const portScanTimeout = 3 * time.Second

// Input is a MIDI transport: it listens on an input port and hands the raw
// message bytes to the ingestion goroutine in arrival order.
type Input struct {
	id       string
	inPort   drivers.In
	stopFunc func()

	bytes   chan []byte
	dropped atomic.Uint64
}

// OpenInput starts listening on inPort. depth bounds the number of messages
// buffered between the driver callback and the consumer.
func OpenInput(inPort drivers.In, depth int) (*Input, error) {
	if depth <= 0 {
		depth = 64
	}
	in := &Input{
		id:     inPort.String(),
		inPort: inPort,
		bytes:  make(chan []byte, depth),
	}

	stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
		raw := append([]byte(nil), msg...)
		select {
		case in.bytes <- raw:
		default:
			n := in.dropped.Add(1)
			debug.LogEvery(16, "input", "dropped message (total=%d)", n)
		}
	}, gomidi.UseSysEx())
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	in.stopFunc = stop

	return in, nil
}

// ID returns the port name
func (in *Input) ID() string {
	return in.id
}

// Bytes returns the channel of received messages as raw bytes
func (in *Input) Bytes() <-chan []byte {
	return in.bytes
}

// Dropped returns how many messages were lost because the consumer lagged
func (in *Input) Dropped() uint64 {
	return in.dropped.Load()
}

func (in *Input) Close() error {
	if in.stopFunc != nil {
		in.stopFunc()
	}
	close(in.bytes)
	return nil
}

// FindInPort returns the first input port whose name contains name
// (case-insensitive). An empty name picks the first port.
func FindInPort(name string) (drivers.In, error) {
	ins, _, err := scanPorts()
	if err != nil {
		return nil, err
	}
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI inputs available")
	}
	if name == "" {
		return ins[0], nil
	}
	lower := strings.ToLower(name)
	for _, p := range ins {
		if strings.Contains(strings.ToLower(p.String()), lower) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input contains %q", name)
}

// FindOutPort returns the first output port whose name contains name
func FindOutPort(name string) (drivers.Out, error) {
	_, outs, err := scanPorts()
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI outputs available")
	}
	if name == "" {
		return outs[0], nil
	}
	lower := strings.ToLower(name)
	for _, p := range outs {
		if strings.Contains(strings.ToLower(p.String()), lower) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output contains %q", name)
}

// PortNames lists input and output port names
func PortNames() (ins, outs []string, err error) {
	inPorts, outPorts, err := scanPorts()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range inPorts {
		ins = append(ins, p.String())
	}
	for _, p := range outPorts {
		outs = append(outs, p.String())
	}
	return ins, outs, nil
}

func scanPorts() ([]drivers.In, []drivers.Out, error) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.inPorts, r.outPorts, nil
	case <-time.After(portScanTimeout):
		return nil, nil, fmt.Errorf("MIDI port scan timed out after %s", portScanTimeout)
	}
}
