// Package virtualcan is an in-process fake canopen.Driver, grounded on the
// teacher's virtual.go loopback bus but with no bus at all: reads and
// writes are recorded rather than transmitted, and every completion is
// delivered only when the test explicitly asks for it through Complete*/
// Deliver*, never from inside QueueSDORead/QueueSDOWrite itself. That
// separation is what lets tests exercise the "driver never answers" and
// "exactly one outstanding request per node" cases deterministically.
package virtualcan

import (
	"sync"

	"github.com/abroun/EPOSControl/canopen"
)

func init() {
	canopen.Register("virtual", func() canopen.Driver { return New() })
}

// ReadRequest is a recorded QueueSDORead call awaiting a Complete call.
type ReadRequest struct {
	NodeID   uint8
	Index    uint16
	SubIndex uint8
	callback canopen.ReadCallback
}

// WriteRequest is a recorded QueueSDOWrite call awaiting a Complete call.
type WriteRequest struct {
	NodeID   uint8
	Index    uint16
	SubIndex uint8
	Data     []byte
	callback canopen.WriteCallback
}

// Driver is a fake canopen.Driver for deterministic tests. It never talks
// to a real bus; everything interesting happens through its Queue*/Pending*
// methods and the test-driven completion methods below.
type Driver struct {
	mu sync.Mutex

	opened   bool
	handlers canopen.EventHandlers

	reads  map[uint8]*ReadRequest
	writes map[uint8]*WriteRequest

	// Writes records every accepted write, in order, for assertions against
	// literal expected SDO sequences.
	Writes []WriteRequest
}

// New constructs an unopened fake driver.
func New() *Driver {
	return &Driver{
		reads:  make(map[uint8]*ReadRequest),
		writes: make(map[uint8]*WriteRequest),
	}
}

// Open records the event handlers; device and baud are ignored.
func (d *Driver) Open(device string, baud canopen.BaudRate, handlers canopen.EventHandlers) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	d.handlers = handlers
	return nil
}

// Close marks the driver closed. Idempotent.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
}

// QueueSDORead records the request and returns true, refusing a second
// concurrent read for the same node exactly like a real transport's
// single-outstanding-transaction limit would.
func (d *Driver) QueueSDORead(nodeID uint8, index uint16, subIndex uint8, callback canopen.ReadCallback) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.reads[nodeID]; busy {
		return false
	}
	d.reads[nodeID] = &ReadRequest{NodeID: nodeID, Index: index, SubIndex: subIndex, callback: callback}
	return true
}

// QueueSDOWrite records the request the same way, and appends it to Writes
// for later inspection.
func (d *Driver) QueueSDOWrite(nodeID uint8, index uint16, subIndex uint8, data []byte, callback canopen.WriteCallback) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.writes[nodeID]; busy {
		return false
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	req := &WriteRequest{NodeID: nodeID, Index: index, SubIndex: subIndex, Data: cp, callback: callback}
	d.writes[nodeID] = req
	d.Writes = append(d.Writes, *req)
	return true
}

// PendingRead returns the currently outstanding read for nodeID, if any.
func (d *Driver) PendingRead(nodeID uint8) (ReadRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.reads[nodeID]
	if !ok {
		return ReadRequest{}, false
	}
	return *r, true
}

// PendingWrite returns the currently outstanding write for nodeID, if any.
func (d *Driver) PendingWrite(nodeID uint8) (WriteRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.writes[nodeID]
	if !ok {
		return WriteRequest{}, false
	}
	return *w, true
}

// CompleteRead delivers data for nodeID's outstanding read, asynchronously
// with respect to whatever goroutine called QueueSDORead. Calling it with
// no outstanding read is a no-op.
func (d *Driver) CompleteRead(nodeID uint8, data []byte) {
	d.mu.Lock()
	r, ok := d.reads[nodeID]
	if ok {
		delete(d.reads, nodeID)
	}
	d.mu.Unlock()
	if ok {
		r.callback(nodeID, data)
	}
}

// CompleteWrite delivers a write completion for nodeID the same way.
func (d *Driver) CompleteWrite(nodeID uint8) {
	d.mu.Lock()
	w, ok := d.writes[nodeID]
	if ok {
		delete(d.writes, nodeID)
	}
	d.mu.Unlock()
	if ok {
		w.callback(nodeID)
	}
}

// DeliverBootup simulates a slave's boot-up heartbeat for nodeID.
func (d *Driver) DeliverBootup(nodeID uint8) {
	d.mu.Lock()
	h := d.handlers.OnPostSlaveBootup
	d.mu.Unlock()
	if h != nil {
		h(nodeID)
	}
}

// DeliverEmergency simulates an emergency frame from nodeID.
func (d *Driver) DeliverEmergency(nodeID uint8, errCode uint16, errReg uint8) {
	d.mu.Lock()
	h := d.handlers.OnPostEmergency
	d.mu.Unlock()
	if h != nil {
		h(nodeID, errCode, errReg)
	}
}
