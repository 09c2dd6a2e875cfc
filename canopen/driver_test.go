package canopen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct{}

func (fakeDriver) Open(device string, baud BaudRate, handlers EventHandlers) error { return nil }
func (fakeDriver) Close()                                                          {}
func (fakeDriver) QueueSDORead(nodeID uint8, index uint16, subIndex uint8, cb ReadCallback) bool {
	return true
}
func (fakeDriver) QueueSDOWrite(nodeID uint8, index uint16, subIndex uint8, data []byte, cb WriteCallback) bool {
	return true
}

func TestRegisterAndNew(t *testing.T) {
	Register("fake-for-driver-test", func() Driver { return fakeDriver{} })

	drv, err := New("fake-for-driver-test")
	require.NoError(t, err)
	assert.NotNil(t, drv)

	assert.Contains(t, Registered(), "fake-for-driver-test")
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
