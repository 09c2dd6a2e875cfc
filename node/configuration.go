package node

import "github.com/abroun/EPOSControl/canopen"

// Configuration selects which static command list a Node dispatches while
// in SettingUp.
type Configuration int

const (
	ConfigurationNone Configuration = iota
	ConfigurationPositionControl
)

// positionControlCommands is the only standard configuration: five SDO
// writes dispatched in order, exactly as CANMotorController.cpp's
// configuration action list for EPOS position-profile mode.
var positionControlCommands = []Action{
	Write(WriteU8("Mode of operation", canopen.ModeOfOperationIndex, 0, canopen.ModeProfilePosition)),
	Write(WriteU32("Profile velocity", canopen.ProfileVelocityIndex, 0, 500)),
	Write(WriteU16("Motion profile type", canopen.MotionProfileTypeIndex, 0, canopen.MotionProfileSinusoid)),
	Write(WriteU16("Controlword shutdown", canopen.ControlwordIndex, 0, canopen.ControlwordShutdown)),
	Write(WriteU16("Controlword switch on", canopen.ControlwordIndex, 0, canopen.ControlwordSwitchOn)),
}

// commandsFor returns the static template for a configuration. The
// returned slice is shared by every node and must never be mutated; nodes
// only read from it while dispatching.
func commandsFor(config Configuration) []Action {
	switch config {
	case ConfigurationPositionControl:
		return positionControlCommands
	default:
		return nil
	}
}
