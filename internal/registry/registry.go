// internal/registry/registry.go
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-probe/internal/codec"
)

var (
	ErrConnectionNotFound = errors.New("registry: connection not found")
	ErrSessionNotFound    = errors.New("registry: session not found")
	ErrSessionExists      = errors.New("registry: session already exists")
)

// connection pairs a profile with its protocol client.
// ioMu serializes every read/write issued against the connection: a serial
// bus is half-duplex, and the protocol client is not guaranteed reentrant
// even over TCP.
type connection struct {
	profile ConnectionProfile
	client  Client

	ioMu      sync.Mutex
	connected bool
}

type session struct {
	def    SessionDefinition
	status SessionStatus
}

// Registry owns connection profiles, their protocol clients and all session
// definitions. The map lock is never held across an I/O call; only the
// per-connection ioMu is.
type Registry struct {
	mu          sync.Mutex
	connections map[string]*connection
	sessions    map[string]*session

	factory ClientFactory
	log     zerolog.Logger
}

// New creates an empty registry using factory to build protocol clients.
func New(factory ClientFactory, logger zerolog.Logger) *Registry {
	return &Registry{
		connections: make(map[string]*connection),
		sessions:    make(map[string]*session),
		factory:     factory,
		log:         logger.With().Str("component", "registry").Logger(),
	}
}

// ---- connections ----

// AddConnection registers a profile and builds its client. Re-adding an
// existing name replaces the connection: the old client is disconnected
// first, so an active profile is never mutated in place.
func (r *Registry) AddConnection(profile ConnectionProfile) error {
	if profile.Name == "" {
		return errors.New("registry: connection name required")
	}

	client, err := r.factory(profile)
	if err != nil {
		return fmt.Errorf("registry: build client for %q: %w", profile.Name, err)
	}

	r.mu.Lock()
	old := r.connections[profile.Name]
	r.connections[profile.Name] = &connection{profile: profile, client: client}
	r.mu.Unlock()

	if old != nil {
		old.ioMu.Lock()
		if old.connected {
			old.client.Disconnect()
			old.connected = false
		}
		old.ioMu.Unlock()
	}

	r.log.Info().Str("connection", profile.Name).Str("kind", string(profile.Kind)).Msg("connection added")
	return nil
}

// RemoveConnection drops a connection. Dependent sessions are stopped and
// removed first so no Running session is ever left dangling.
func (r *Registry) RemoveConnection(name string) error {
	r.mu.Lock()
	conn, ok := r.connections[name]
	if !ok {
		r.mu.Unlock()
		return ErrConnectionNotFound
	}

	for sessName, sess := range r.sessions {
		if sess.def.ConnectionName == name {
			sess.status = Stopped
			delete(r.sessions, sessName)
			r.log.Info().Str("session", sessName).Msg("session removed with connection")
		}
	}
	delete(r.connections, name)
	r.mu.Unlock()

	conn.ioMu.Lock()
	if conn.connected {
		conn.client.Disconnect()
		conn.connected = false
	}
	conn.ioMu.Unlock()

	r.log.Info().Str("connection", name).Msg("connection removed")
	return nil
}

// HasConnection reports whether a profile with this name exists.
func (r *Registry) HasConnection(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.connections[name]
	return ok
}

// ConnectionNames returns all registered profile names.
func (r *Registry) ConnectionNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.connections))
	for name := range r.connections {
		names = append(names, name)
	}
	return names
}

// Profile returns a copy of the named connection profile.
func (r *Registry) Profile(name string) (ConnectionProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[name]
	if !ok {
		return ConnectionProfile{}, false
	}
	return conn.profile, true
}

func (r *Registry) conn(name string) (*connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[name]
	return conn, ok
}

// Connect establishes the transport if it is not already up.
func (r *Registry) Connect(name string) bool {
	conn, ok := r.conn(name)
	if !ok {
		return false
	}

	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	if conn.connected {
		return true
	}
	conn.connected = conn.client.Connect()
	if !conn.connected {
		r.log.Warn().Str("connection", name).Msg("connect failed")
	}
	return conn.connected
}

// Disconnect tears the transport down. Sessions keep their status; the next
// poll will try to reconnect.
func (r *Registry) Disconnect(name string) {
	conn, ok := r.conn(name)
	if !ok {
		return
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	if conn.connected {
		conn.client.Disconnect()
		conn.connected = false
	}
}

// Connected reports the transport state.
func (r *Registry) Connected(name string) bool {
	conn, ok := r.conn(name)
	if !ok {
		return false
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	return conn.connected
}

// ---- I/O, serialized per connection ----

// ReadBits reads from a bit address space through the connection lock.
func (r *Registry) ReadBits(connName string, unitID uint8, space AddressSpace, start, count uint16) ([]bool, error) {
	conn, ok := r.conn(connName)
	if !ok {
		return nil, ErrConnectionNotFound
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	return conn.client.ReadBits(unitID, space, start, count)
}

// ReadWords reads from a word address space through the connection lock.
func (r *Registry) ReadWords(connName string, unitID uint8, space AddressSpace, start, count uint16) ([]uint16, error) {
	conn, ok := r.conn(connName)
	if !ok {
		return nil, ErrConnectionNotFound
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	return conn.client.ReadWords(unitID, space, start, count)
}

// WriteBit writes a single coil.
func (r *Registry) WriteBit(connName string, unitID uint8, addr uint16, value bool) (bool, error) {
	conn, ok := r.conn(connName)
	if !ok {
		return false, ErrConnectionNotFound
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	return conn.client.WriteBit(unitID, addr, value)
}

// WriteWord writes a single holding register.
func (r *Registry) WriteWord(connName string, unitID uint8, addr uint16, value uint16) (bool, error) {
	conn, ok := r.conn(connName)
	if !ok {
		return false, ErrConnectionNotFound
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	return conn.client.WriteWord(unitID, addr, value)
}

// WriteBits writes multiple coils.
func (r *Registry) WriteBits(connName string, unitID uint8, start uint16, values []bool) (bool, error) {
	conn, ok := r.conn(connName)
	if !ok {
		return false, ErrConnectionNotFound
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	return conn.client.WriteBits(unitID, start, values)
}

// WriteWords writes multiple holding registers.
func (r *Registry) WriteWords(connName string, unitID uint8, start uint16, values []uint16) (bool, error) {
	conn, ok := r.conn(connName)
	if !ok {
		return false, ErrConnectionNotFound
	}
	conn.ioMu.Lock()
	defer conn.ioMu.Unlock()
	return conn.client.WriteWords(unitID, start, values)
}

// WriteTag encodes an engineering value per the tag's type and byte order
// and writes it to the device. Bool tags on a coil space become a single
// bit write; everything else becomes a register write.
func (r *Registry) WriteTag(connName string, unitID uint8, tag TagDefinition, value float64) (bool, error) {
	if tag.Space.IsBits() {
		return r.WriteBit(connName, unitID, tag.Address, value != 0)
	}

	words, err := codec.Encode(value, tag.DataType, tag.ByteOrder)
	if err != nil {
		return false, err
	}
	if len(words) == 1 {
		return r.WriteWord(connName, unitID, tag.Address, words[0])
	}
	return r.WriteWords(connName, unitID, tag.Address, words)
}

// ---- sessions ----

// AddSession registers a session in Stopped state. The target connection
// must exist.
func (r *Registry) AddSession(def SessionDefinition) error {
	if def.Name == "" {
		return errors.New("registry: session name required")
	}
	if def.UnitID < 1 || def.UnitID > 247 {
		return fmt.Errorf("registry: session %q: unit id %d out of range 1-247", def.Name, def.UnitID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[def.ConnectionName]; !ok {
		return fmt.Errorf("registry: session %q: %w: %q", def.Name, ErrConnectionNotFound, def.ConnectionName)
	}
	if _, ok := r.sessions[def.Name]; ok {
		return fmt.Errorf("%w: %q", ErrSessionExists, def.Name)
	}

	r.sessions[def.Name] = &session{def: def, status: Stopped}
	r.log.Info().Str("session", def.Name).Str("connection", def.ConnectionName).Msg("session added")
	return nil
}

// RemoveSession forces the session to Stopped, then drops it.
func (r *Registry) RemoveSession(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[name]
	if !ok {
		return ErrSessionNotFound
	}
	sess.status = Stopped
	delete(r.sessions, name)
	r.log.Info().Str("session", name).Msg("session removed")
	return nil
}

// StartSession flips a session to Running. Also the way out of Error:
// the error state never heals by itself.
func (r *Registry) StartSession(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	if !ok {
		return ErrSessionNotFound
	}
	sess.status = Running
	return nil
}

// StopSession flips a session to Stopped. An in-flight poll completes.
func (r *Registry) StopSession(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	if !ok {
		return ErrSessionNotFound
	}
	sess.status = Stopped
	return nil
}

// SetSessionError marks a session as failed. Forced by the scheduler on
// transport-level failure; only an explicit StopSession or StartSession
// leaves this state.
func (r *Registry) SetSessionError(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[name]; ok {
		sess.status = Errored
	}
}

// Session returns a copy of the named definition.
func (r *Registry) Session(name string) (SessionDefinition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	if !ok {
		return SessionDefinition{}, false
	}
	return sess.def, true
}

// SessionStatus returns the runtime status of the named session.
func (r *Registry) SessionStatus(name string) (SessionStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	if !ok {
		return "", false
	}
	return sess.status, true
}

// Sessions returns a snapshot of all definitions.
func (r *Registry) Sessions() []SessionDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionDefinition, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.def)
	}
	return out
}

// RunningSessions returns a snapshot of Running definitions. The scheduler
// iterates the snapshot, so session map mutation during a tick is safe.
func (r *Registry) RunningSessions() []SessionDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SessionDefinition
	for _, sess := range r.sessions {
		if sess.status == Running {
			out = append(out, sess.def)
		}
	}
	return out
}
