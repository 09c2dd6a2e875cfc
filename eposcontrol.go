// Package eposcontrol is the process-wide library façade described in
// §4.6: a stable set of opaque channel handles over a fixed channel-slot
// table, grounded on EPOSControl.cpp/.h from the original source and on
// the teacher's top-level package doc-comment convention (canopen.go).
package eposcontrol

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/abroun/EPOSControl/canopen"
	"github.com/abroun/EPOSControl/channel"
)

// MaxChannels bounds how many CAN channels a process may have open at
// once, matching Common.h's MAX_NUM_CAN_CHANNELS.
const MaxChannels = 2

// Handle is a stable, opaque reference to an open channel. It remains
// valid for the channel's lifetime; CloseChannel invalidates it.
type Handle = *channel.Channel

var (
	mu       sync.Mutex
	canMu    sync.Mutex
	started  bool
	slots    [MaxChannels]*channel.Channel
	inUse    [MaxChannels]bool
)

// Initialise brings the library up. Idempotent: calling it again while
// already started just returns true.
func Initialise() bool {
	mu.Lock()
	defer mu.Unlock()
	started = true
	return true
}

// Deinitialise closes every open channel and tears the library down.
// Idempotent.
func Deinitialise() {
	mu.Lock()
	defer mu.Unlock()
	if !started {
		return
	}
	for i := range slots {
		if inUse[i] {
			slots[i].Deinit()
			slots[i] = nil
			inUse[i] = false
		}
	}
	started = false
}

// OpenChannel opens a channel using driverName (resolved through the
// canopen.Driver registry) against device at baud. slot, if >= 0, requests
// a specific slot index; a negative slot picks the first free one.
// Returns ErrSlotExhausted if no slot is available, or the driver's own
// open error (surfaced as ErrTransportOpenFailed) if the transport could
// not be started.
func OpenChannel(driverName, device string, baud canopen.BaudRate, slot int) (Handle, error) {
	mu.Lock()
	idx, err := reserveSlot(slot)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	ch := channel.New(idx)
	slots[idx] = ch
	mu.Unlock()

	if err := ch.Init(driverName, device, baud); err != nil {
		mu.Lock()
		slots[idx] = nil
		inUse[idx] = false
		mu.Unlock()
		return nil, err
	}
	return ch, nil
}

func reserveSlot(slot int) (int, error) {
	if slot >= 0 {
		if slot >= MaxChannels {
			return 0, canopen.ErrSlotExhausted
		}
		if inUse[slot] {
			return 0, canopen.ErrSlotExhausted
		}
		inUse[slot] = true
		return slot, nil
	}
	for i := 0; i < MaxChannels; i++ {
		if !inUse[i] {
			inUse[i] = true
			return i, nil
		}
	}
	return 0, canopen.ErrSlotExhausted
}

// CloseChannel tears a channel down and frees its slot. A nil or
// already-closed handle is a no-op.
func CloseChannel(h Handle) {
	if h == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	idx := h.Index()
	if idx < 0 || idx >= MaxChannels || slots[idx] != h {
		return
	}
	h.Deinit()
	slots[idx] = nil
	inUse[idx] = false
}

// Lock/Unlock expose a process-wide CAN mutex an embedder running its own
// goroutines can use to serialise calls against the tick goroutine,
// carried over from EPOS_EnterCANMutex/EPOS_LeaveCANMutex in the original
// EPOSControl.h. A single-goroutine embedder never needs these.
func Lock()   { canMu.Lock() }
func Unlock() { canMu.Unlock() }

// SetLogger replaces the package-wide logrus logger used by channel event
// diagnostics. Defaults to logrus's standard logger.
func SetLogger(logger *log.Logger) {
	log.SetOutput(logger.Out)
	log.SetLevel(logger.Level)
	log.SetFormatter(logger.Formatter)
}
