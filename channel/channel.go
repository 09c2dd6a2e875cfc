// Package channel implements the fairness-scheduled collection of node
// drivers that drive one CAN bus, grounded on CANChannel.cpp/.h from the
// original EPOSControl source and on the teacher's bus_manager.go for the
// mutex-guarded event-routing shape.
package channel

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/abroun/EPOSControl/canopen"
	"github.com/abroun/EPOSControl/node"
)

// MaxNodes is the fixed size of the per-channel node array. Node id 0 is
// reserved as the CANopen broadcast address and is never polled.
const MaxNodes = 128

// MotorControllerSnapshot is one row of Channel.Snapshot's output.
type MotorControllerSnapshot struct {
	NodeID     uint8
	State      node.State
	Angle      int32
	AngleValid bool
}

// Channel owns up to MaxNodes node drivers on a single CAN bus, rotates
// the tick order for fairness, and demultiplexes the driver's asynchronous
// events down to the node they belong to. All state here is mutated only
// from the goroutine that calls Tick and the goroutine(s) that deliver
// driver events; mu serialises the two exactly the way bus_manager.go
// serialises frame delivery against concurrent Subscribe/Send calls.
type Channel struct {
	mu sync.Mutex

	idx          int
	initialised  bool
	driver       canopen.Driver
	nodes        [MaxNodes]*node.Node
	frameIdx     uint32
	startingNode uint8

	log *log.Entry
}

// New constructs an uninitialised channel with idx as its client-visible
// index. Node drivers are allocated immediately (fixed array, no lazy
// construction) so that event callbacks can always address node ids 1..127
// even before Init has been called.
func New(idx int) *Channel {
	c := &Channel{idx: idx, startingNode: 1}
	for id := 1; id < MaxNodes; id++ {
		c.nodes[id] = node.New(uint8(id))
	}
	c.log = log.WithField("channel", idx)
	return c
}

// Init opens driverName (looked up in the canopen.Driver registry) against
// device at the given baud rate and begins routing its events to this
// channel's nodes.
func (c *Channel) Init(driverName, device string, baud canopen.BaudRate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialised {
		// A second Init, whatever its parameters, is treated as already
		// done and keeps the existing transport, not as an error, per §7's
		// recoverable-invariant-violation rule.
		return nil
	}
	drv, err := canopen.New(driverName)
	if err != nil {
		c.log.WithError(err).Error("failed to load driver")
		return canopen.ErrTransportOpenFailed
	}
	handlers := canopen.EventHandlers{
		OnHeartbeatError:  c.onHeartbeatError,
		OnPostSync:        c.onPostSync,
		OnPostTPDO:        c.onPostTPDO,
		OnPostEmergency:   c.onPostEmergency,
		OnPostSlaveBootup: c.onPostSlaveBootup,
	}
	if err := drv.Open(device, baud, handlers); err != nil {
		c.log.WithError(err).Error("failed to open transport")
		return canopen.ErrTransportOpenFailed
	}
	c.driver = drv
	c.initialised = true
	c.log.WithFields(log.Fields{"driver": driverName, "device": device, "baud": baud}).Info("channel opened")
	return nil
}

// Deinit tears every node driver down, then the transport, matching
// CANChannel::Deinit's ordering.
func (c *Channel) Deinit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialised {
		return
	}
	for id := 1; id < MaxNodes; id++ {
		c.nodes[id].Reset()
	}
	c.driver.Close()
	c.driver = nil
	c.initialised = false
	c.log.Info("channel closed")
}

// Index returns the client-visible channel index assigned at New.
func (c *Channel) Index() int { return c.idx }

// FrameIndex implements node.Dispatcher.
func (c *Channel) FrameIndex() uint32 {
	return c.frameIdx
}

// DispatchRead implements node.Dispatcher by forwarding to the driver with
// a completion callback that routes back to the requesting node. Called
// only from within Tick, which already holds mu for the whole scheduling
// round; the callback it registers fires later, potentially from the
// driver's own goroutine, and takes mu itself at that point.
func (c *Channel) DispatchRead(nodeID uint8, index uint16, subIndex uint8) bool {
	return c.driver.QueueSDORead(nodeID, index, subIndex, func(nodeID uint8, data []byte) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if n := c.nodeAt(nodeID); n != nil {
			n.OnReadComplete(data)
		}
	})
}

// DispatchWrite implements node.Dispatcher the same way, for writes.
func (c *Channel) DispatchWrite(nodeID uint8, index uint16, subIndex uint8, data []byte) bool {
	return c.driver.QueueSDOWrite(nodeID, index, subIndex, data, func(nodeID uint8) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if n := c.nodeAt(nodeID); n != nil {
			n.OnWriteComplete()
		}
	})
}

func (c *Channel) nodeAt(nodeID uint8) *node.Node {
	if nodeID == 0 || int(nodeID) >= MaxNodes {
		return nil
	}
	return c.nodes[nodeID]
}

// Tick drives one round of the scheduler: increments frame_idx, visits
// every node starting from the rotating cursor, and picks the next
// starting node for fairness.
func (c *Channel) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialised {
		return
	}
	c.frameIdx++

	start := c.startingNode
	nextStart := start
	foundNext := false

	for i := 0; i < MaxNodes-1; i++ {
		id := uint8((int(start)-1+i)%(MaxNodes-1) + 1)
		n := c.nodes[id]
		n.Tick(c)
		if !foundNext && id != start && n.LastKnownNMT() != canopen.NMTUnknown {
			nextStart = id
			foundNext = true
		}
	}
	c.startingNode = nextStart
}

func (c *Channel) onHeartbeatError(nodeID uint8, errCode uint8) {
	c.log.WithFields(log.Fields{"node_id": nodeID, "error_code": errCode}).Warn("heartbeat error")
}

func (c *Channel) onPostSync() {
	c.log.Debug("sync")
}

func (c *Channel) onPostTPDO() {
	c.log.Debug("tpdo")
}

func (c *Channel) onPostEmergency(nodeID uint8, errCode uint16, errReg uint8) {
	msg := canopen.EmergencyMessage(errCode, errReg)
	c.log.WithFields(log.Fields{"node_id": nodeID, "err_code": fmt.Sprintf("0x%04X", errCode), "err_reg": fmt.Sprintf("0x%02X", errReg)}).Warnf("emergency: %s", msg)
}

func (c *Channel) onPostSlaveBootup(nodeID uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.nodeAt(nodeID); n != nil {
		n.TellNMT(canopen.NMTPreOperational)
		c.log.WithField("node_id", nodeID).Info("node present")
	}
}

// ConfigureAllForPositionControl sets every node driver's configuration to
// PositionControl.
func (c *Channel) ConfigureAllForPositionControl() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := 1; id < MaxNodes; id++ {
		c.nodes[id].AddConfiguration(node.ConfigurationPositionControl)
	}
}

// SetMotorAngle forwards to the given node's SetDesiredAngle, silently
// ignoring an out-of-range id.
func (c *Channel) SetMotorAngle(nodeID uint8, angle int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.nodeAt(nodeID); n != nil {
		n.SetDesiredAngle(angle)
	}
}

// SetProfileVelocity forwards to the given node's SetProfileVelocity.
func (c *Channel) SetProfileVelocity(nodeID uint8, velocity uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.nodeAt(nodeID); n != nil {
		n.SetProfileVelocity(velocity)
	}
}

// SetMaximumFollowingError forwards to the given node's SetMaximumFollowingError.
func (c *Channel) SetMaximumFollowingError(nodeID uint8, value int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.nodeAt(nodeID); n != nil {
		n.SetMaximumFollowingError(value)
	}
}

// SendFaultReset forwards to the given node's SendFaultReset.
func (c *Channel) SendFaultReset(nodeID uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.nodeAt(nodeID); n != nil {
		n.SendFaultReset()
	}
}

// Snapshot returns one row per present node, in ascending node-id order.
func (c *Channel) Snapshot() []MotorControllerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MotorControllerSnapshot, 0, MaxNodes)
	for id := 1; id < MaxNodes; id++ {
		n := c.nodes[id]
		if !n.IsPresent() {
			continue
		}
		out = append(out, MotorControllerSnapshot{
			NodeID:     n.NodeID(),
			State:      n.State(),
			Angle:      n.Angle(),
			AngleValid: n.IsAngleValid(),
		})
	}
	return out
}

// Node exposes a single node driver directly, for embedders that want
// finer-grained access than Snapshot. Returns nil for an out-of-range id.
func (c *Channel) Node(nodeID uint8) *node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeAt(nodeID)
}
