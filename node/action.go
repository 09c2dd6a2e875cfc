package node

import "github.com/abroun/EPOSControl/canopen"

// ActionType discriminates the two kinds of step a command list can
// contain. Modelled on CANMotorControllerAction's tagged union, but
// expressed as a Go sum type instead of a C union: a typed struct with an
// explicit Type field, rather than inheritance or reinterpreted memory.
type ActionType int

const (
	ActionInvalid ActionType = iota
	ActionEnsureNMTState
	ActionSDOWrite
)

// NMTMode selects how EnsureNMTState behaves: Passive waits for the state
// to arrive on its own, Active is reserved for a driver that can demand a
// state transition. None of the core's command lists contains an
// EnsureNMTState step; if one did, an Active check would advance at once.
type NMTMode int

const (
	NMTModePassive NMTMode = iota
	NMTModeActive
)

// EnsureNMTState is the payload of an ActionEnsureNMTState action.
type EnsureNMTState struct {
	Mode    NMTMode
	Desired canopen.NMTState
}

// Action is a single step of a static command list: either "ensure the
// node reaches an NMT state" or "write this SDO field". The zero Action
// has Type ActionInvalid, which plays the role of the sentinel the
// original's fixed-size arrays used to mark their end — in Go the natural
// end-of-list marker is simply the end of the slice, so Invalid is kept
// only as the zero value, never written into a list itself.
type Action struct {
	Type ActionType
	NMT  EnsureNMTState
	SDO  SDOField
}

// EnsureNMT builds an ActionEnsureNMTState step.
func EnsureNMT(mode NMTMode, desired canopen.NMTState) Action {
	return Action{Type: ActionEnsureNMTState, NMT: EnsureNMTState{Mode: mode, Desired: desired}}
}

// Write builds an ActionSDOWrite step from a write-direction SDOField.
func Write(field SDOField) Action {
	return Action{Type: ActionSDOWrite, SDO: field}
}
