package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abroun/EPOSControl/canopen"
)

// recordedWrite is one DispatchWrite call seen by testDispatcher.
type recordedWrite struct {
	NodeID   uint8
	Index    uint16
	SubIndex uint8
	Data     []byte
}

type recordedRead struct {
	NodeID   uint8
	Index    uint16
	SubIndex uint8
}

// testDispatcher is a fake Dispatcher that accepts every dispatch
// immediately but never completes it on its own — tests drive completion
// explicitly via Node.OnReadComplete/OnWriteComplete, the same way a real
// driver would only ever complete asynchronously.
type testDispatcher struct {
	frame  uint32
	writes []recordedWrite
	reads  []recordedRead

	rejectWrite bool
	rejectRead  bool
}

func (d *testDispatcher) FrameIndex() uint32 { return d.frame }

func (d *testDispatcher) DispatchRead(nodeID uint8, index uint16, subIndex uint8) bool {
	if d.rejectRead {
		return false
	}
	d.reads = append(d.reads, recordedRead{nodeID, index, subIndex})
	return true
}

func (d *testDispatcher) DispatchWrite(nodeID uint8, index uint16, subIndex uint8, data []byte) bool {
	if d.rejectWrite {
		return false
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.writes = append(d.writes, recordedWrite{nodeID, index, subIndex, cp})
	return true
}

func present(n *Node) {
	n.TellNMT(canopen.NMTPreOperational)
}

// driveWrites ticks n maxTicks times, completing each write right after
// the tick that dispatched it, simulating a driver that always answers
// before the next tick.
func driveWrites(t *testing.T, n *Node, d *testDispatcher, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		before := len(d.writes)
		n.Tick(d)
		if len(d.writes) > before {
			n.OnWriteComplete()
		}
	}
}

func TestNodeStaysInactiveWithoutConfiguration(t *testing.T) {
	n := New(5)
	present(n)
	d := &testDispatcher{}
	n.Tick(d)
	assert.Equal(t, StateInactive, n.State())
	assert.Empty(t, d.writes)
}

func TestNodeIgnoresTicksWhileAbsent(t *testing.T) {
	n := New(5)
	n.AddConfiguration(ConfigurationPositionControl)
	d := &testDispatcher{}
	n.Tick(d)
	assert.Equal(t, StateInactive, n.State())
	assert.Empty(t, d.writes)
}

func TestConfigurationRunsToCompletionBeforeRunning(t *testing.T) {
	n := New(5)
	present(n)
	n.AddConfiguration(ConfigurationPositionControl)
	d := &testDispatcher{}

	driveWrites(t, n, d, 20)

	require.Equal(t, StateRunning, n.State())
	require.Len(t, d.writes, 5)
	assert.Equal(t, canopen.ModeOfOperationIndex, d.writes[0].Index)
	assert.Equal(t, canopen.ProfileVelocityIndex, d.writes[1].Index)
	assert.Equal(t, canopen.MotionProfileTypeIndex, d.writes[2].Index)
	assert.Equal(t, canopen.ControlwordIndex, d.writes[3].Index)
	assert.Equal(t, []byte{0x06, 0x00}, d.writes[3].Data)
	assert.Equal(t, canopen.ControlwordIndex, d.writes[4].Index)
	assert.Equal(t, []byte{0x0F, 0x00}, d.writes[4].Data)
}

func TestAtMostOneOutstandingWrite(t *testing.T) {
	n := New(5)
	present(n)
	n.AddConfiguration(ConfigurationPositionControl)
	d := &testDispatcher{}

	n.Tick(d)
	require.Len(t, d.writes, 1)

	// No completion delivered yet: a second tick must not dispatch another
	// write for this node.
	n.Tick(d)
	assert.Len(t, d.writes, 1)

	n.OnWriteComplete()
	n.Tick(d)
	assert.Len(t, d.writes, 2)
}

func TestAtMostOneOutstandingRead(t *testing.T) {
	n := New(5)
	present(n)
	d := &testDispatcher{}
	n.enterRunning()

	n.Tick(d)
	require.Len(t, d.reads, 1)

	n.Tick(d)
	assert.Len(t, d.reads, 1, "a second read must not be dispatched while one is outstanding")
}

func TestDesiredAngleDispatchesTargetThenStartPositioning(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	n.SetDesiredAngle(1234)

	d := &testDispatcher{}
	driveWrites(t, n, d, 10)

	require.Len(t, d.writes, 2)
	assert.Equal(t, canopen.TargetPositionIndex, d.writes[0].Index)
	assert.Equal(t, []byte{0xD2, 0x04, 0x00, 0x00}, d.writes[0].Data)
	assert.Equal(t, canopen.ControlwordIndex, d.writes[1].Index)
	assert.Equal(t, []byte{0x3F, 0x00}, d.writes[1].Data)
	assert.Equal(t, TaskNone, n.runningTask)
}

func TestDuplicateDesiredAnglePendingIsDropped(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	n.SetDesiredAngle(500)
	n.SetDesiredAngle(500)
	assert.True(t, n.desiredAngleRequested)
	// still just one logical request outstanding
	n.SetDesiredAngle(600)
	assert.Equal(t, int32(600), n.newDesiredAngle)
}

func TestDuplicateDesiredAngleWhileRunningIsDropped(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	n.SetDesiredAngle(777)

	d := &testDispatcher{}
	n.Tick(d) // dispatch target position write, task now running with 777
	require.Equal(t, TaskSetDesiredAngle, n.runningTask)
	require.Equal(t, int32(777), n.currentDesiredAngle)

	n.SetDesiredAngle(777)
	assert.False(t, n.desiredAngleRequested, "same value as the in-flight task must be dropped")

	n.SetDesiredAngle(999)
	assert.True(t, n.desiredAngleRequested)
}

func TestTaskPriorityOrder(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()

	n.SetDesiredAngle(1)
	n.SetMaximumFollowingError(2)
	n.SetProfileVelocity(3)
	n.SendFaultReset()

	n.selectNextTask()
	assert.Equal(t, TaskSendFaultReset, n.runningTask)

	n.runningTask = TaskNone
	n.selectNextTask()
	assert.Equal(t, TaskSetProfileVelocity, n.runningTask)

	n.runningTask = TaskNone
	n.selectNextTask()
	assert.Equal(t, TaskSetMaximumFollowingError, n.runningTask)

	n.runningTask = TaskNone
	n.selectNextTask()
	assert.Equal(t, TaskSetDesiredAngle, n.runningTask)
}

func TestFaultResetInvalidatesAngleAndStatus(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	n.angleValid = true
	n.statusValid = true

	n.SendFaultReset()
	n.selectNextTask()

	assert.False(t, n.angleValid)
	assert.False(t, n.statusValid)
}

func TestReadPollPrefersStatusWhenStale(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	d := &testDispatcher{frame: 1}

	n.tickReadPoll(d)
	require.Len(t, d.reads, 1)
	assert.Equal(t, canopen.StatuswordIndex, d.reads[0].Index)
}

func TestReadPollFallsBackToPositionWhenStatusFresh(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	d := &testDispatcher{frame: 1}
	n.currentFrame = 1

	n.tickReadPoll(d)
	n.OnReadComplete([]byte{0x27, 0x06})
	require.True(t, n.statusValid)

	d.frame = 2
	n.currentFrame = 2
	n.tickReadPoll(d)
	require.Len(t, d.reads, 2)
	assert.Equal(t, canopen.PositionActualIndex, d.reads[1].Index)
}

func TestReadPollRepollsStatusAfterInterval(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	d := &testDispatcher{frame: 1}
	n.currentFrame = 1

	n.tickReadPoll(d)
	n.OnReadComplete([]byte{0x27, 0x06})
	require.Equal(t, uint32(1), n.lastStatusPoll)

	d.frame = 1 + canopen.StatusPollInterval + 1
	n.currentFrame = d.frame
	n.tickReadPoll(d)
	require.Len(t, d.reads, 2)
	assert.Equal(t, canopen.StatuswordIndex, d.reads[1].Index)
}

func TestAddConfigurationFromRunningReEntersSettingUp(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	n.AddConfiguration(ConfigurationPositionControl)
	assert.Equal(t, StateSettingUp, n.State())
}

func TestClearConfigurationDoesNotForceStateChange(t *testing.T) {
	n := New(5)
	present(n)
	n.enterRunning()
	n.AddConfiguration(ConfigurationPositionControl)
	n.state = StateRunning
	n.ClearConfiguration()
	assert.Equal(t, StateRunning, n.State())
	assert.Equal(t, ConfigurationNone, n.Configuration())
}

func TestSetMaximumFollowingErrorClampsNegative(t *testing.T) {
	n := New(5)
	n.SetMaximumFollowingError(-5)
	assert.Equal(t, uint32(0), n.newMaxFollowingError)
}
