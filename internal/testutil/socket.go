// Package testutil provides in-memory doubles shared by the service tests.
package testutil

import (
	"encoding/json"
	"net/url"
	"sync"

	"github.com/gocomet/ride-realtime/pkg/websocket"
)

// Emitted is one outbound frame captured by FakeSocket
type Emitted struct {
	Event string
	Data  json.RawMessage
}

// Decode unmarshals the captured payload into v
func (e Emitted) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// FakeSocket stands in for a websocket.Socket. Tests push inbound frames
// through Deliver and inspect outbound frames with Emitted.
type FakeSocket struct {
	mu        sync.Mutex
	opts      websocket.SocketOptions
	onFrame   func(websocket.Frame)
	query     url.Values
	connected bool
	connects  int
	closes    int
	emitted   []Emitted
}

// Connect records the call. The link only counts as up after the test
// delivers a connect frame.
func (f *FakeSocket) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

// SetQuery records the parameters used by future reconnects
func (f *FakeSocket) SetQuery(q url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
}

// Connected reports whether a connect frame was delivered and no disconnect followed
func (f *FakeSocket) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected && f.closes == 0
}

// Emit captures an outbound frame
func (f *FakeSocket) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 {
		return websocket.ErrSocketClosed
	}
	if !f.connected {
		return websocket.ErrSocketNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.emitted = append(f.emitted, Emitted{Event: event, Data: data})
	return nil
}

// Close records the call
func (f *FakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return nil
}

// Deliver feeds an inbound frame as if it came from the server. connect and
// disconnect frames also flip the link state.
func (f *FakeSocket) Deliver(event string, payload interface{}) {
	frame, err := websocket.NewFrame(event, payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	switch event {
	case websocket.EventConnect:
		f.connected = true
	case websocket.EventDisconnect, websocket.EventConnectError:
		f.connected = false
	}
	onFrame := f.onFrame
	f.mu.Unlock()
	onFrame(frame)
}

// Emitted returns the captured outbound frames in order
func (f *FakeSocket) Emitted() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emitted(nil), f.emitted...)
}

// Events returns the names of the captured outbound frames in order
func (f *FakeSocket) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.emitted))
	for _, e := range f.emitted {
		out = append(out, e.Event)
	}
	return out
}

// Count returns how many frames named event were emitted
func (f *FakeSocket) Count(event string) int {
	n := 0
	for _, e := range f.Events() {
		if e == event {
			n++
		}
	}
	return n
}

// Last returns the last emitted frame named event
func (f *FakeSocket) Last(event string) (Emitted, bool) {
	all := f.Emitted()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Event == event {
			return all[i], true
		}
	}
	return Emitted{}, false
}

// Reset forgets captured frames
func (f *FakeSocket) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = nil
}

// Options returns the options the socket was created with
func (f *FakeSocket) Options() websocket.SocketOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

// Query returns the current connection parameters
func (f *FakeSocket) Query() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Closes returns how many times Close was called
func (f *FakeSocket) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Connects returns how many times Connect was called
func (f *FakeSocket) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Dialer hands out FakeSockets and remembers each one
type Dialer struct {
	mu      sync.Mutex
	sockets []*FakeSocket
}

// Dial creates a FakeSocket bound to onFrame
func (d *Dialer) Dial(opts websocket.SocketOptions, onFrame func(websocket.Frame)) *FakeSocket {
	s := &FakeSocket{opts: opts, onFrame: onFrame, query: opts.Query}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sockets = append(d.sockets, s)
	return s
}

// Sockets returns every socket dialed so far
func (d *Dialer) Sockets() []*FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSocket(nil), d.sockets...)
}

// Latest returns the most recently dialed socket, nil if none
func (d *Dialer) Latest() *FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}
