package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abroun/EPOSControl/canopen"
)

func TestEnsureNMTBuildsPassiveCheck(t *testing.T) {
	a := EnsureNMT(NMTModePassive, canopen.NMTOperational)
	assert.Equal(t, ActionEnsureNMTState, a.Type)
	assert.Equal(t, canopen.NMTOperational, a.NMT.Desired)
}

func TestWriteBuildsSDOWriteAction(t *testing.T) {
	a := Write(WriteU8("desc", 0x6060, 0, 1))
	assert.Equal(t, ActionSDOWrite, a.Type)
	assert.Equal(t, uint16(0x6060), a.SDO.Index)
}

func TestZeroActionIsInvalid(t *testing.T) {
	var a Action
	assert.Equal(t, ActionInvalid, a.Type)
}

func TestDispatchNextActionWaitsOnPassiveNMTCheck(t *testing.T) {
	n := New(5)
	present(n)
	list := []Action{EnsureNMT(NMTModePassive, canopen.NMTOperational)}

	d := &testDispatcher{}
	cursor := n.dispatchNextAction(d, list, 0)
	assert.Equal(t, 0, cursor, "must wait until last_known_nmt reaches the desired state")

	n.TellNMT(canopen.NMTOperational)
	cursor = n.dispatchNextAction(d, list, 0)
	assert.Equal(t, 1, cursor)
}
