package socketcan

import (
	"testing"

	"github.com/brutella/can"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eposcanopen "github.com/abroun/EPOSControl/canopen"
)

func newTestDriver() *Driver {
	return &Driver{
		pendingReads:  make(map[uint8]*pendingRead),
		pendingWrites: make(map[uint8]*pendingWrite),
		log:           log.NewEntry(log.New()),
	}
}

func TestHandleEmergencyDecodesCodeAndRegister(t *testing.T) {
	d := newTestDriver()
	var gotCode uint16
	var gotReg uint8
	d.handlers = eposcanopen.EventHandlers{
		OnPostEmergency: func(nodeID uint8, errCode uint16, errReg uint8) {
			gotCode, gotReg = errCode, errReg
		},
	}
	frame := can.Frame{ID: 0x080 + 9, Length: 8}
	frame.Data[0] = 0x10
	frame.Data[1] = 0x23 // little-endian code 0x2310
	frame.Data[2] = 0x02

	d.Handle(frame)
	assert.Equal(t, uint16(0x2310), gotCode)
	assert.Equal(t, uint8(0x02), gotReg)
}

func TestHandleHeartbeatBootupFires(t *testing.T) {
	d := newTestDriver()
	var gotNode uint8
	d.handlers = eposcanopen.EventHandlers{
		OnPostSlaveBootup: func(nodeID uint8) { gotNode = nodeID },
	}
	frame := can.Frame{ID: 0x700 + 5, Length: 1}
	frame.Data[0] = 0x00

	d.Handle(frame)
	assert.Equal(t, uint8(5), gotNode)
}

func TestHandleSDOResponseCompletesPendingRead(t *testing.T) {
	d := newTestDriver()
	var gotData []byte
	d.pendingReads[3] = &pendingRead{callback: func(nodeID uint8, data []byte) { gotData = data }}

	frame := can.Frame{ID: 0x580 + 3, Length: 8}
	frame.Data[0] = 0x43 // upload response, e=1 s=1 n=0 -> 4 bytes
	frame.Data[4] = 0x01
	frame.Data[5] = 0x02
	frame.Data[6] = 0x03
	frame.Data[7] = 0x04

	d.Handle(frame)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, gotData)
	_, stillPending := d.pendingReads[3]
	assert.False(t, stillPending)
}

func TestHandleSDOResponseAbortStillCompletesWrite(t *testing.T) {
	d := newTestDriver()
	fired := false
	d.pendingWrites[3] = &pendingWrite{callback: func(uint8) { fired = true }}

	frame := can.Frame{ID: 0x580 + 3, Length: 8}
	frame.Data[0] = scsAbort

	d.Handle(frame)
	assert.True(t, fired)
}
