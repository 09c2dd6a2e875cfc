// Package node implements the per-node CANopen driver state machine: the
// bulk of the library's core, grounded on CANMotorController.cpp/.h from
// the original EPOSControl source and on the teacher's NMT/SDO-client
// naming conventions for the CANopen-specific vocabulary.
package node

import "github.com/abroun/EPOSControl/canopen"

// State is the node's top-level lifecycle state.
type State int

const (
	StateInactive State = iota
	StateSettingUp
	StateRunning
	// StateHoming is reserved for future use; nothing transitions into it.
	// The read sub-state machine still polls while in this state, but the
	// running-task dispatcher does not, matching §4.4's description of it
	// as an otherwise no-op top-level state.
	StateHoming
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateSettingUp:
		return "SettingUp"
	case StateRunning:
		return "Running"
	case StateHoming:
		return "Homing"
	default:
		return "Unknown"
	}
}

// Task identifies the one-shot running task currently occupying the
// dispatcher, or TaskNone when idle.
type Task int

const (
	TaskNone Task = iota
	TaskSetDesiredAngle
	TaskSendFaultReset
	TaskSetProfileVelocity
	TaskSetMaximumFollowingError
)

type subState int

const (
	subInactive subState = iota
	subActive
)

// Dispatcher is the capability a Node needs from its owning channel: the
// current tick counter and the ability to queue at most one outstanding
// SDO read and one outstanding SDO write. The channel is passed into Tick
// as a parameter rather than stored as a parent pointer, so a Node never
// owns a reference back to its channel.
type Dispatcher interface {
	FrameIndex() uint32
	DispatchRead(nodeID uint8, index uint16, subIndex uint8) bool
	DispatchWrite(nodeID uint8, index uint16, subIndex uint8, data []byte) bool
}

// Node is the per-node state machine described in §4.4: presence tracking,
// configuration setup, the running-task dispatcher, and the SDO read/write
// sub-state machines.
type Node struct {
	nodeID      uint8
	initialised bool
	present     bool

	lastKnownNMT canopen.NMTState

	state         State
	configuration Configuration
	setupCommands []Action
	setupCursor   int

	runningTask  Task
	taskCommands []Action
	taskCursor   int

	faultResetRequested bool

	desiredAngleRequested bool
	newDesiredAngle       int32
	currentDesiredAngle   int32

	profileVelocityRequested bool
	newProfileVelocity       uint32
	currentProfileVelocity   uint32

	maxFollowingErrorRequested bool
	newMaxFollowingError       uint32
	currentMaxFollowingError   uint32

	readState  subState
	writeState subState
	activeRead *SDOField

	writeDispatchFrame uint32
	currentFrame       uint32

	statusReadField   SDOField
	positionReadField SDOField

	angle      int32
	angleValid bool

	statusWord     uint16
	statusValid    bool
	lastStatusPoll uint32

	faultResetCmds        [3]Action
	profileVelocityCmds   [1]Action
	maxFollowingErrorCmds [1]Action
	desiredAngleCmds      [2]Action
}

// New builds a Node for the given node id (1..127). Node ids are assigned
// by the owning channel; this constructor performs no I/O.
func New(nodeID uint8) *Node {
	n := &Node{nodeID: nodeID, initialised: true}

	n.statusReadField = NewRead("Statusword", canopen.StatuswordIndex, 0, func(f *SDOField) {
		n.statusWord = f.U16()
		n.statusValid = true
		n.lastStatusPoll = n.currentFrame
	})
	n.positionReadField = NewRead("Position actual", canopen.PositionActualIndex, 0, func(f *SDOField) {
		n.angle = f.S32()
		n.angleValid = true
	})

	n.faultResetCmds = [3]Action{
		Write(WriteU16("Fault reset", canopen.ControlwordIndex, 0, canopen.ControlwordFaultReset)),
		Write(WriteU16("Shutdown", canopen.ControlwordIndex, 0, canopen.ControlwordShutdown)),
		Write(WriteU16("Switch on", canopen.ControlwordIndex, 0, canopen.ControlwordSwitchOn)),
	}
	n.profileVelocityCmds = [1]Action{
		Write(WriteU32("Profile velocity", canopen.ProfileVelocityIndex, 0, 0)),
	}
	n.maxFollowingErrorCmds = [1]Action{
		Write(WriteU32("Max following error", canopen.MaxFollowingErrorIndex, 0, 0)),
	}
	n.desiredAngleCmds = [2]Action{
		Write(WriteS32("Target position", canopen.TargetPositionIndex, 0, 0)),
		Write(WriteU16("Start positioning", canopen.ControlwordIndex, 0, canopen.ControlwordStartPositioning)),
	}

	return n
}

// Reset restores the node to its freshly-constructed state. Used by the
// channel on Deinit, mirroring CANChannel::Deinit tearing its node drivers
// down before the transport.
func (n *Node) Reset() {
	// New's read callbacks write into the Node it allocates, so keep the
	// ones already bound to n.
	statusCallback := n.statusReadField.ReadCallback
	positionCallback := n.positionReadField.ReadCallback
	*n = *New(n.nodeID)
	n.statusReadField.ReadCallback = statusCallback
	n.positionReadField.ReadCallback = positionCallback
}

func (n *Node) NodeID() uint8 { return n.nodeID }
func (n *Node) IsInitialised() bool { return n.initialised }
func (n *Node) IsPresent() bool { return n.present }
func (n *Node) State() State { return n.state }
func (n *Node) Configuration() Configuration { return n.configuration }
func (n *Node) IsAngleValid() bool { return n.angleValid }
func (n *Node) Angle() int32 { return n.angle }
func (n *Node) LastKnownNMT() canopen.NMTState { return n.lastKnownNMT }
func (n *Node) IsStatusValid() bool { return n.statusValid }
func (n *Node) StatusWord() uint16 { return n.statusWord }

// TellNMT latches presence and records the last-known NMT state. Any NMT
// notification latches presence; in this system the channel only ever
// calls this on a post-slave-bootup event (see Channel event routing),
// which is why the data model describes it as "evidence the node is
// physically present".
func (n *Node) TellNMT(state canopen.NMTState) {
	n.present = true
	n.lastKnownNMT = state
}

// AddConfiguration selects the configuration to apply. Permitted only from
// Inactive or Running, and only when actually changing configuration; a
// call from Running re-enters SettingUp. Silently ignored otherwise, per
// the no-error design for operator calls.
func (n *Node) AddConfiguration(config Configuration) {
	if n.state != StateInactive && n.state != StateRunning {
		return
	}
	if config == n.configuration {
		return
	}
	n.configuration = config
	n.setupCommands = commandsFor(config)
	n.setupCursor = 0
	if n.state == StateRunning {
		n.state = StateSettingUp
	}
}

// ClearConfiguration resets the setup cursor and configuration to None.
// It does not force a state transition: a node already Running stays
// Running, matching CANMotorController::ClearConfiguration.
func (n *Node) ClearConfiguration() {
	n.configuration = ConfigurationNone
	n.setupCommands = nil
	n.setupCursor = 0
}

// SetDesiredAngle requests a one-shot move to the given target position.
// Idempotent: a duplicate value is dropped if it matches either a pending
// request or the value the currently-running SetDesiredAngle task was
// started with.
func (n *Node) SetDesiredAngle(angle int32) {
	if n.desiredAngleRequested && n.newDesiredAngle == angle {
		return
	}
	if n.runningTask == TaskSetDesiredAngle && n.currentDesiredAngle == angle {
		return
	}
	n.desiredAngleRequested = true
	n.newDesiredAngle = angle
}

// SetProfileVelocity requests a one-shot profile-velocity write. Coalescing
// rule identical to SetDesiredAngle.
func (n *Node) SetProfileVelocity(velocity uint32) {
	if n.profileVelocityRequested && n.newProfileVelocity == velocity {
		return
	}
	if n.runningTask == TaskSetProfileVelocity && n.currentProfileVelocity == velocity {
		return
	}
	n.profileVelocityRequested = true
	n.newProfileVelocity = velocity
}

// SetMaximumFollowingError requests a one-shot max-following-error write.
// Negative values are coerced to zero before coalescing.
func (n *Node) SetMaximumFollowingError(value int32) {
	if value < 0 {
		value = 0
	}
	v := uint32(value)
	if n.maxFollowingErrorRequested && n.newMaxFollowingError == v {
		return
	}
	if n.runningTask == TaskSetMaximumFollowingError && n.currentMaxFollowingError == v {
		return
	}
	n.maxFollowingErrorRequested = true
	n.newMaxFollowingError = v
}

// SendFaultReset unconditionally requests the fault-reset task.
func (n *Node) SendFaultReset() {
	n.faultResetRequested = true
}

// Tick advances the node's state machine by one frame. ctx is supplied by
// the owning channel for this call only; the node keeps no reference to
// it afterwards.
func (n *Node) Tick(ctx Dispatcher) {
	if !n.present {
		return
	}
	n.currentFrame = ctx.FrameIndex()

	if n.state == StateInactive {
		if n.configuration == ConfigurationNone {
			return
		}
		n.state = StateSettingUp
		n.setupCursor = 0
	}

	switch n.state {
	case StateSettingUp:
		n.setupCursor = n.dispatchNextAction(ctx, n.setupCommands, n.setupCursor)
		if n.setupCursor >= len(n.setupCommands) && n.writeState == subInactive {
			n.enterRunning()
		}
	case StateRunning:
		n.tickRunningTask(ctx)
		n.tickReadPoll(ctx)
	case StateHoming:
		n.tickReadPoll(ctx)
	}
}

func (n *Node) enterRunning() {
	n.state = StateRunning
	n.faultResetRequested = false
	n.desiredAngleRequested = false
	n.profileVelocityRequested = false
	n.maxFollowingErrorRequested = false
	n.runningTask = TaskNone
}

// dispatchNextAction attempts to move a command-list cursor forward by
// dispatching (or, for EnsureNMTState, observing) list[cursor]. It is
// shared by the setup-command list and every running-task command list.
func (n *Node) dispatchNextAction(ctx Dispatcher, list []Action, cursor int) int {
	if n.writeState == subActive {
		return cursor
	}
	if cursor >= len(list) {
		return cursor
	}
	action := &list[cursor]
	switch action.Type {
	case ActionSDOWrite:
		field := &action.SDO
		if ctx.DispatchWrite(n.nodeID, field.Index, field.SubIndex, field.Data[:field.Length]) {
			n.writeState = subActive
			n.writeDispatchFrame = ctx.FrameIndex()
			return cursor + 1
		}
		return cursor
	case ActionEnsureNMTState:
		if action.NMT.Mode == NMTModePassive && n.lastKnownNMT != action.NMT.Desired {
			return cursor
		}
		return cursor + 1
	default:
		return cursor + 1
	}
}

func (n *Node) tickRunningTask(ctx Dispatcher) {
	if n.runningTask == TaskNone {
		n.selectNextTask()
	}
	if n.runningTask == TaskNone {
		return
	}
	n.taskCursor = n.dispatchNextAction(ctx, n.taskCommands, n.taskCursor)
	if n.taskCursor >= len(n.taskCommands) && n.writeState == subInactive {
		n.runningTask = TaskNone
	}
}

// selectNextTask applies the fixed priority order — FaultReset >
// ProfileVelocity > MaxFollowingError > DesiredAngle — mutating the
// matching pre-built command buffer's payload in place rather than
// allocating a new command list.
func (n *Node) selectNextTask() {
	switch {
	case n.faultResetRequested:
		n.faultResetRequested = false
		n.angleValid = false
		n.statusValid = false
		n.taskCommands = n.faultResetCmds[:]
		n.taskCursor = 0
		n.runningTask = TaskSendFaultReset

	case n.profileVelocityRequested:
		n.profileVelocityRequested = false
		n.currentProfileVelocity = n.newProfileVelocity
		n.profileVelocityCmds[0].SDO.SetU32(n.newProfileVelocity)
		n.taskCommands = n.profileVelocityCmds[:]
		n.taskCursor = 0
		n.runningTask = TaskSetProfileVelocity

	case n.maxFollowingErrorRequested:
		n.maxFollowingErrorRequested = false
		n.currentMaxFollowingError = n.newMaxFollowingError
		n.maxFollowingErrorCmds[0].SDO.SetU32(n.newMaxFollowingError)
		n.taskCommands = n.maxFollowingErrorCmds[:]
		n.taskCursor = 0
		n.runningTask = TaskSetMaximumFollowingError

	case n.desiredAngleRequested:
		n.desiredAngleRequested = false
		n.currentDesiredAngle = n.newDesiredAngle
		n.desiredAngleCmds[0].SDO.SetS32(n.newDesiredAngle)
		n.taskCommands = n.desiredAngleCmds[:]
		n.taskCursor = 0
		n.runningTask = TaskSetDesiredAngle
	}
}

// tickReadPoll runs the SDO read sub-state machine: statusword takes
// priority whenever it is stale or has never been read, otherwise
// position-actual is polled.
func (n *Node) tickReadPoll(ctx Dispatcher) {
	if n.readState == subActive {
		return
	}
	field := &n.positionReadField
	if !n.statusValid || n.currentFrame-n.lastStatusPoll > canopen.StatusPollInterval {
		field = &n.statusReadField
	}
	if !ctx.DispatchRead(n.nodeID, field.Index, field.SubIndex) {
		return
	}
	n.readState = subActive
	n.activeRead = field
}

// OnReadComplete routes a completed SDO read back to whichever field was
// outstanding, then invokes that field's callback.
func (n *Node) OnReadComplete(data []byte) {
	if n.readState != subActive || n.activeRead == nil {
		return
	}
	field := n.activeRead
	field.CopyBytes(data)
	n.readState = subInactive
	n.activeRead = nil
	if field.ReadCallback != nil {
		field.ReadCallback(field)
	}
}

// OnWriteComplete routes a completed SDO write back to Inactive. A
// completion delivered while no write was outstanding is ignored rather
// than treated as fatal.
func (n *Node) OnWriteComplete() {
	if n.writeState != subActive {
		return
	}
	n.writeState = subInactive
}
