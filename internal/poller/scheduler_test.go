// internal/poller/scheduler_test.go
package poller

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-probe/internal/codec"
	"github.com/tamzrod/modbus-probe/internal/registry"
	"github.com/tamzrod/modbus-probe/internal/status"
	"github.com/tamzrod/modbus-probe/internal/trace"
)

// ---- fake registry ----

type readCall struct {
	conn  string
	unit  uint8
	space registry.AddressSpace
	start uint16
	count uint16
}

type fakeRegistry struct {
	mu       sync.Mutex
	sessions []registry.SessionDefinition

	missing   map[string]bool
	refuse    bool
	connected map[string]bool
	readErr   error
	words     []uint16
	bits      []bool
	reads     []readCall
	errored   map[string]bool
}

func newFakeRegistry(sessions ...registry.SessionDefinition) *fakeRegistry {
	return &fakeRegistry{
		sessions:  sessions,
		missing:   make(map[string]bool),
		connected: make(map[string]bool),
		errored:   make(map[string]bool),
	}
}

func (f *fakeRegistry) RunningSessions() []registry.SessionDefinition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]registry.SessionDefinition, len(f.sessions))
	copy(out, f.sessions)
	return out
}

func (f *fakeRegistry) HasConnection(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[name]
}

func (f *fakeRegistry) Connected(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[name]
}

func (f *fakeRegistry) Connect(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.connected[name] = true
	return true
}

func (f *fakeRegistry) ReadBits(conn string, unit uint8, space registry.AddressSpace, start, count uint16) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, readCall{conn, unit, space, start, count})
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]bool, count)
	copy(out, f.bits)
	return out, nil
}

func (f *fakeRegistry) ReadWords(conn string, unit uint8, space registry.AddressSpace, start, count uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, readCall{conn, unit, space, start, count})
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]uint16, count)
	copy(out, f.words)
	return out, nil
}

func (f *fakeRegistry) SetSessionError(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored[name] = true
}

func (f *fakeRegistry) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

func (f *fakeRegistry) readsFor(sessionUnit uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.reads {
		if r.unit == sessionUnit {
			n++
		}
	}
	return n
}

// ---- helpers ----

func holdingSession(name string, interval time.Duration) registry.SessionDefinition {
	return registry.SessionDefinition{
		Name:           name,
		ConnectionName: "plc1",
		UnitID:         1,
		Space:          registry.HoldingRegister,
		StartAddress:   0,
		Quantity:       10,
		PollInterval:   interval,
	}
}

func testScheduler(reg Registry, store *trace.Store) *Scheduler {
	return New(Config{Tick: 10 * time.Millisecond}, reg, store, zerolog.Nop())
}

// ---- tests ----

func TestPollProducesOneTraceAndOneResult(t *testing.T) {
	reg := newFakeRegistry(holdingSession("s1", time.Second))
	reg.words = []uint16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	store := trace.NewStore(100)
	sched := testScheduler(reg, store)

	var results []PollResult
	sched.Subscribe(func(r PollResult) { results = append(results, r) })

	sched.tickOnce(time.Now())

	if store.Len() != 1 {
		t.Fatalf("trace entries = %d, want 1", store.Len())
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}

	res := results[0]
	if res.Status != status.Ok {
		t.Fatalf("status = %q, want OK", res.Status)
	}
	if len(res.RawWords) != 10 {
		t.Errorf("raw words = %d, want 10", len(res.RawWords))
	}
	if len(res.Values) != 10 {
		t.Errorf("decoded values = %d, want 10", len(res.Values))
	}

	entry := store.Snapshot()[0]
	if entry.Direction != trace.Received || entry.OperationCode != 3 || entry.Quantity != 10 {
		t.Errorf("trace entry = %+v", entry)
	}
}

func TestSchedulerFairness(t *testing.T) {
	fast := holdingSession("fast", 100*time.Millisecond)
	slow := holdingSession("slow", time.Second)
	slow.UnitID = 2
	reg := newFakeRegistry(fast, slow)
	sched := testScheduler(reg, nil)

	// Drive one simulated second of 10ms ticks.
	now := time.Now()
	for i := 0; i < 100; i++ {
		sched.tickOnce(now.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	if got := reg.readsFor(1); got != 10 {
		t.Errorf("fast session polled %d times, want 10", got)
	}
	if got := reg.readsFor(2); got != 1 {
		t.Errorf("slow session polled %d times, want 1", got)
	}
}

func TestResetPollTimer(t *testing.T) {
	reg := newFakeRegistry(holdingSession("s1", time.Hour))
	sched := testScheduler(reg, nil)

	now := time.Now()
	sched.tickOnce(now)
	sched.tickOnce(now.Add(10 * time.Millisecond))
	if got := reg.readCount(); got != 1 {
		t.Fatalf("reads before reset = %d, want 1", got)
	}

	sched.ResetPollTimer("s1")
	sched.tickOnce(now.Add(20 * time.Millisecond))
	if got := reg.readCount(); got != 2 {
		t.Errorf("reads after reset = %d, want 2", got)
	}
}

func TestEffectiveQuantityCoversTags(t *testing.T) {
	def := holdingSession("s1", time.Second)
	def.Tags = []registry.TagDefinition{{
		Space:    registry.HoldingRegister,
		Address:  8,
		Name:     "flow",
		DataType: codec.Int32,
	}}
	if q := effectiveQuantity(def); q != 10 {
		t.Errorf("tag inside window: quantity = %d, want 10", q)
	}

	def.Tags[0].Address = 9
	if q := effectiveQuantity(def); q != 11 {
		t.Errorf("tag spilling over: quantity = %d, want 11", q)
	}

	// Tags in another space or before the window never widen the read.
	def.Tags[0].Address = 9
	def.Tags[0].Space = registry.InputRegister
	if q := effectiveQuantity(def); q != 10 {
		t.Errorf("foreign space: quantity = %d, want 10", q)
	}
}

func TestPollReadsEffectiveSpan(t *testing.T) {
	def := holdingSession("s1", time.Second)
	def.Tags = []registry.TagDefinition{{
		Space:    registry.HoldingRegister,
		Address:  9,
		Name:     "flow",
		DataType: codec.Float32,
	}}
	reg := newFakeRegistry(def)
	sched := testScheduler(reg, nil)

	sched.tickOnce(time.Now())

	if got := reg.readCount(); got != 1 {
		t.Fatalf("reads = %d, want 1", got)
	}
	reg.mu.Lock()
	call := reg.reads[0]
	reg.mu.Unlock()
	if call.count != 11 {
		t.Errorf("read quantity = %d, want 11", call.count)
	}
}

func TestTransportFailureLatchesSessionError(t *testing.T) {
	reg := newFakeRegistry(holdingSession("s1", time.Second))
	reg.readErr = &timeoutErr{}
	store := trace.NewStore(100)
	sched := testScheduler(reg, store)

	sched.tickOnce(time.Now())

	if !reg.errored["s1"] {
		t.Error("session not marked errored after timeout")
	}
	entry := store.Snapshot()[0]
	if entry.Status != status.Timeout || entry.Direction != trace.Sent {
		t.Errorf("trace entry = %+v", entry)
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string { return "read tcp 10.0.0.5:502: i/o timeout" }

func TestExceptionKeepsSessionRunning(t *testing.T) {
	reg := newFakeRegistry(holdingSession("s1", time.Second))
	reg.readErr = &fakeException{code: 2}
	store := trace.NewStore(100)
	sched := testScheduler(reg, store)

	var errResults []PollResult
	sched.SubscribeErrors(func(r PollResult) { errResults = append(errResults, r) })

	sched.tickOnce(time.Now())

	if reg.errored["s1"] {
		t.Error("exception must not latch the session into error")
	}
	entry := store.Snapshot()[0]
	if entry.Status != status.ProtocolException || entry.ExceptionCode != 2 {
		t.Errorf("trace entry = %+v", entry)
	}
	if entry.Direction != trace.Received {
		t.Errorf("exception is a response, direction = %q", entry.Direction)
	}
	if len(errResults) != 1 || errResults[0].ExceptionCode != 2 {
		t.Errorf("error results = %+v", errResults)
	}
}

func TestConnectFailure(t *testing.T) {
	reg := newFakeRegistry(holdingSession("s1", time.Second))
	reg.refuse = true
	store := trace.NewStore(100)
	sched := testScheduler(reg, store)

	var results []PollResult
	sched.Subscribe(func(r PollResult) { results = append(results, r) })

	sched.tickOnce(time.Now())

	if got := reg.readCount(); got != 0 {
		t.Fatalf("reads = %d, want 0", got)
	}
	if !reg.errored["s1"] {
		t.Error("session not marked errored after connect failure")
	}
	entry := store.Snapshot()[0]
	if entry.Status != status.NoResponse {
		t.Errorf("trace status = %q, want %q", entry.Status, status.NoResponse)
	}
	if len(results) != 1 || results[0].Status != status.TransportError {
		t.Errorf("results = %+v", results)
	}
}

func TestMissingConnectionSkipsTrace(t *testing.T) {
	reg := newFakeRegistry(holdingSession("s1", time.Second))
	reg.missing["plc1"] = true
	store := trace.NewStore(100)
	sched := testScheduler(reg, store)

	var errResults []PollResult
	sched.SubscribeErrors(func(r PollResult) { errResults = append(errResults, r) })

	sched.tickOnce(time.Now())

	if store.Len() != 0 {
		t.Errorf("trace entries = %d, want 0", store.Len())
	}
	if len(errResults) != 1 || errResults[0].Status != status.TransportError {
		t.Errorf("error results = %+v", errResults)
	}
	if !reg.errored["s1"] {
		t.Error("session not marked errored for a missing connection")
	}
}

func TestDecodeValuesRawThenTags(t *testing.T) {
	def := holdingSession("s1", time.Second)
	def.Quantity = 4
	def.Tags = []registry.TagDefinition{
		{
			Space:       registry.HoldingRegister,
			Address:     0,
			Name:        "temp",
			DataType:    codec.Int16,
			ScaleFactor: 0.1,
			ScaleOffset: -40,
			Unit:        "degC",
		},
		{
			Space:       registry.HoldingRegister,
			Address:     2,
			Name:        "count",
			DataType:    codec.UInt32,
			ByteOrder:   codec.BigEndian,
			ScaleFactor: 1,
		},
	}
	words := []uint16{650, 7, 0x0001, 0x0002}

	values, skipped := decodeValues(def, nil, words)
	if len(skipped) != 0 {
		t.Fatalf("skipped tags = %v", skipped)
	}
	if len(values) != 6 {
		t.Fatalf("values = %d, want 4 raw + 2 tags", len(values))
	}

	for i := 0; i < 4; i++ {
		v := values[i]
		if v.FromTag || v.Address != uint16(i) || v.Raw != float64(words[i]) {
			t.Errorf("raw value %d = %+v", i, v)
		}
	}

	temp := values[4]
	if temp.Name != "temp" || !temp.FromTag {
		t.Fatalf("tag value = %+v", temp)
	}
	if temp.Raw != 650 || temp.Scaled != 25 {
		t.Errorf("temp raw=%v scaled=%v, want 650 and 25", temp.Raw, temp.Scaled)
	}

	count := values[5]
	if count.Raw != 0x00010002 || count.Scaled != 0x00010002 {
		t.Errorf("count raw=%v scaled=%v", count.Raw, count.Scaled)
	}
}

func TestDecodeValuesBits(t *testing.T) {
	def := holdingSession("s1", time.Second)
	def.Space = registry.Coil
	def.Quantity = 3
	def.Tags = []registry.TagDefinition{{
		Space:       registry.Coil,
		Address:     1,
		Name:        "pump",
		DataType:    codec.Bool,
		ScaleFactor: 1,
	}}
	bits := []bool{false, true, false}

	values, _ := decodeValues(def, bits, nil)
	if len(values) != 4 {
		t.Fatalf("values = %d, want 3 raw + 1 tag", len(values))
	}
	if values[1].Raw != 1 {
		t.Errorf("raw bit 1 = %v, want 1", values[1].Raw)
	}
	pump := values[3]
	if !pump.FromTag || pump.Name != "pump" || pump.Scaled != 1 {
		t.Errorf("pump = %+v", pump)
	}
}

// A tag that cannot decode is dropped for that poll, never emitted as a
// zero value.
func TestDecodeValuesSkipsUndecodableTag(t *testing.T) {
	def := holdingSession("s1", time.Second)
	def.Quantity = 2
	def.Tags = []registry.TagDefinition{{
		Space:       registry.HoldingRegister,
		Address:     1,
		Name:        "wide",
		DataType:    codec.Int32,
		ByteOrder:   codec.BigEndian,
		ScaleFactor: 1,
	}}

	// Two words only: the 32-bit tag at offset 1 needs words 1 and 2.
	values, skipped := decodeValues(def, nil, []uint16{7, 8})

	if len(values) != 2 {
		t.Fatalf("values = %+v, want the 2 raw entries only", values)
	}
	if len(skipped) != 1 || skipped[0] != "wide" {
		t.Errorf("skipped = %v, want [wide]", skipped)
	}
}

func TestStartStop(t *testing.T) {
	reg := newFakeRegistry(holdingSession("s1", 20*time.Millisecond))
	sched := testScheduler(reg, nil)

	sched.Start()
	time.Sleep(100 * time.Millisecond)
	sched.Stop()

	if got := reg.readCount(); got == 0 {
		t.Error("scheduler never polled while running")
	}
	after := reg.readCount()
	time.Sleep(50 * time.Millisecond)
	if reg.readCount() != after {
		t.Error("scheduler kept polling after Stop")
	}
}
