// Package canopen defines the boundary between the node/channel core and
// whatever concrete CAN transport and CANopen stack actually talks to the
// drives. The core only ever depends on the Driver interface in this
// file; it never references a specific transport's types, threading model
// or timers.
package canopen

// ReadCallback is delivered exactly once per accepted QueueSDORead, with
// the raw bytes returned by the node (length <= 8).
type ReadCallback func(nodeID uint8, data []byte)

// WriteCallback is delivered exactly once per accepted QueueSDOWrite.
type WriteCallback func(nodeID uint8)

// EventHandlers is the set of asynchronous notifications a Driver delivers
// to its owning channel. Every field is optional; a Driver must tolerate a
// nil handler (and simply not invoke it) so the channel can wire only the
// events it cares about.
type EventHandlers struct {
	OnHeartbeatError  func(nodeID uint8, errorCode uint8)
	OnPostSync        func()
	OnPostTPDO        func()
	OnPostEmergency   func(nodeID uint8, errCode uint16, errReg uint8)
	OnPostSlaveBootup func(nodeID uint8)
}

// Driver is the abstract CANopen driver boundary described in the design:
// open/close a bus, queue at most one outstanding SDO read and one
// outstanding SDO write per node, and deliver asynchronous completions and
// network-management notifications back through EventHandlers. Any
// concrete CANopen master library can implement this; the core never
// knows which one is behind it.
//
// Callers may hold their own lock across each QueueSDORead/QueueSDOWrite
// call, and the completion callbacks they supply take that same lock; a
// Driver implementation must never invoke the supplied callback
// synchronously from within the Queue call itself, only later, or the
// caller will deadlock against its own lock.
type Driver interface {
	// Open initialises the underlying CANopen stack on the named device at
	// the given baud rate and starts delivering events to handlers. Open
	// is called at most once per Driver instance.
	Open(device string, baud BaudRate, handlers EventHandlers) error

	// Close tears the transport down. Idempotent.
	Close()

	// QueueSDORead asks the transport to read index/subIndex from nodeID.
	// Returns false if the transport's queue is full; the caller must
	// retry on a later tick. On success, callback fires exactly once.
	QueueSDORead(nodeID uint8, index uint16, subIndex uint8, callback ReadCallback) bool

	// QueueSDOWrite asks the transport to write data (<=8 bytes) to
	// index/subIndex on nodeID. Returns false if rejected; the caller
	// must retry on a later tick. On success, callback fires exactly once.
	QueueSDOWrite(nodeID uint8, index uint16, subIndex uint8, data []byte, callback WriteCallback) bool
}

// Factory constructs a fresh, unopened Driver; the device string is
// supplied later, to Driver.Open. Concrete drivers
// register a Factory under a name in an init() function, mirroring the
// teacher's pkg/can plugin-registry pattern, so a driver library can be
// selected by name at OpenChannel time without the core importing it.
type Factory func() Driver

var registry = make(map[string]Factory)

// Register makes a driver factory available under name. Intended to be
// called from a driver package's init().
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New looks up a previously-registered driver factory by name and
// constructs a fresh Driver instance, or returns ErrUnknownDriver.
func New(name string) (Driver, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, ErrUnknownDriver
	}
	return factory(), nil
}

// Registered lists the driver names currently available, for diagnostics.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
