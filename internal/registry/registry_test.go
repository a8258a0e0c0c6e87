// internal/registry/registry_test.go
package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-probe/internal/codec"
)

// ---- fake client ----

type writeRec struct {
	kind  string
	addr  uint16
	word  uint16
	words []uint16
	bit   bool
}

type fakeClient struct {
	connects    int
	disconnects int
	writes      []writeRec
}

func (f *fakeClient) Connect() bool { f.connects++; return true }
func (f *fakeClient) Disconnect()   { f.disconnects++ }

func (f *fakeClient) ReadBits(unitID uint8, space AddressSpace, start, count uint16) ([]bool, error) {
	return make([]bool, count), nil
}

func (f *fakeClient) ReadWords(unitID uint8, space AddressSpace, start, count uint16) ([]uint16, error) {
	return make([]uint16, count), nil
}

func (f *fakeClient) WriteBit(unitID uint8, addr uint16, value bool) (bool, error) {
	f.writes = append(f.writes, writeRec{kind: "bit", addr: addr, bit: value})
	return true, nil
}

func (f *fakeClient) WriteWord(unitID uint8, addr uint16, value uint16) (bool, error) {
	f.writes = append(f.writes, writeRec{kind: "word", addr: addr, word: value})
	return true, nil
}

func (f *fakeClient) WriteBits(unitID uint8, start uint16, values []bool) (bool, error) {
	f.writes = append(f.writes, writeRec{kind: "bits", addr: start})
	return true, nil
}

func (f *fakeClient) WriteWords(unitID uint8, start uint16, values []uint16) (bool, error) {
	f.writes = append(f.writes, writeRec{kind: "words", addr: start, words: values})
	return true, nil
}

// newTestRegistry returns a registry whose factory hands out fresh fake
// clients, and a lookup for the client built per connection name.
func newTestRegistry() (*Registry, map[string]*fakeClient) {
	clients := make(map[string]*fakeClient)
	factory := func(p ConnectionProfile) (Client, error) {
		c := &fakeClient{}
		clients[p.Name] = c
		return c, nil
	}
	return New(factory, zerolog.Nop()), clients
}

func profile(name string) ConnectionProfile {
	return ConnectionProfile{Name: name, Kind: Network, Host: "127.0.0.1", Port: 502}
}

func sessionDef(name, conn string) SessionDefinition {
	return SessionDefinition{
		Name:           name,
		ConnectionName: conn,
		UnitID:         1,
		Space:          HoldingRegister,
		Quantity:       10,
	}
}

// ---- tests ----

func TestAddSessionRequiresConnection(t *testing.T) {
	reg, _ := newTestRegistry()

	err := reg.AddSession(sessionDef("s1", "nope"))
	if !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("got %v, want ErrConnectionNotFound", err)
	}
}

func TestAddSessionUnitRange(t *testing.T) {
	reg, _ := newTestRegistry()
	if err := reg.AddConnection(profile("c1")); err != nil {
		t.Fatal(err)
	}

	def := sessionDef("s1", "c1")
	def.UnitID = 0
	if err := reg.AddSession(def); err == nil {
		t.Error("unit 0 accepted")
	}
	def.UnitID = 247
	if err := reg.AddSession(def); err != nil {
		t.Errorf("unit 247 rejected: %v", err)
	}
}

func TestDuplicateSessionRejected(t *testing.T) {
	reg, _ := newTestRegistry()
	if err := reg.AddConnection(profile("c1")); err != nil {
		t.Fatal(err)
	}
	if err := reg.AddSession(sessionDef("s1", "c1")); err != nil {
		t.Fatal(err)
	}

	err := reg.AddSession(sessionDef("s1", "c1"))
	if !errors.Is(err, ErrSessionExists) {
		t.Errorf("got %v, want ErrSessionExists", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.AddConnection(profile("c1"))
	reg.AddSession(sessionDef("s1", "c1"))

	if st, _ := reg.SessionStatus("s1"); st != Stopped {
		t.Fatalf("new session status = %q, want Stopped", st)
	}

	reg.StartSession("s1")
	if st, _ := reg.SessionStatus("s1"); st != Running {
		t.Fatalf("status = %q, want Running", st)
	}
	if got := reg.RunningSessions(); len(got) != 1 || got[0].Name != "s1" {
		t.Errorf("running sessions = %+v", got)
	}

	// Error latches until an explicit start or stop.
	reg.SetSessionError("s1")
	if st, _ := reg.SessionStatus("s1"); st != Errored {
		t.Fatalf("status = %q, want Error", st)
	}
	if got := reg.RunningSessions(); len(got) != 0 {
		t.Errorf("errored session still listed as running: %+v", got)
	}

	reg.StartSession("s1")
	if st, _ := reg.SessionStatus("s1"); st != Running {
		t.Errorf("restart did not clear error state: %q", st)
	}
}

func TestRemoveConnectionCascades(t *testing.T) {
	reg, clients := newTestRegistry()
	reg.AddConnection(profile("c1"))
	reg.AddConnection(profile("c2"))
	reg.AddSession(sessionDef("s1", "c1"))
	reg.AddSession(sessionDef("s2", "c1"))
	reg.AddSession(sessionDef("s3", "c2"))
	reg.Connect("c1")

	if err := reg.RemoveConnection("c1"); err != nil {
		t.Fatal(err)
	}

	if _, ok := reg.Session("s1"); ok {
		t.Error("s1 survived its connection")
	}
	if _, ok := reg.Session("s2"); ok {
		t.Error("s2 survived its connection")
	}
	if _, ok := reg.Session("s3"); !ok {
		t.Error("s3 removed although its connection stayed")
	}
	if clients["c1"].disconnects != 1 {
		t.Errorf("removed connection disconnected %d times, want 1", clients["c1"].disconnects)
	}
}

func TestReplaceConnectionDisconnectsOld(t *testing.T) {
	reg, clients := newTestRegistry()
	reg.AddConnection(profile("c1"))
	reg.Connect("c1")
	old := clients["c1"]

	reg.AddConnection(profile("c1"))

	if old.disconnects != 1 {
		t.Errorf("old client disconnected %d times, want 1", old.disconnects)
	}
	if reg.Connected("c1") {
		t.Error("replacement connection must start disconnected")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	reg, clients := newTestRegistry()
	reg.AddConnection(profile("c1"))

	reg.Connect("c1")
	reg.Connect("c1")

	if clients["c1"].connects != 1 {
		t.Errorf("client.Connect called %d times, want 1", clients["c1"].connects)
	}
}

func TestWriteTagRouting(t *testing.T) {
	reg, clients := newTestRegistry()
	reg.AddConnection(profile("c1"))

	coil := TagDefinition{Space: Coil, Address: 3, DataType: codec.Bool}
	if ok, err := reg.WriteTag("c1", 1, coil, 1); !ok || err != nil {
		t.Fatalf("coil write: ok=%v err=%v", ok, err)
	}

	word := TagDefinition{Space: HoldingRegister, Address: 5, DataType: codec.UInt16}
	if ok, err := reg.WriteTag("c1", 1, word, 1234); !ok || err != nil {
		t.Fatalf("word write: ok=%v err=%v", ok, err)
	}

	wide := TagDefinition{Space: HoldingRegister, Address: 7, DataType: codec.UInt32, ByteOrder: codec.BigEndian}
	if ok, err := reg.WriteTag("c1", 1, wide, float64(0x12345678)); !ok || err != nil {
		t.Fatalf("wide write: ok=%v err=%v", ok, err)
	}

	writes := clients["c1"].writes
	if len(writes) != 3 {
		t.Fatalf("writes = %d, want 3", len(writes))
	}
	if writes[0].kind != "bit" || writes[0].addr != 3 || !writes[0].bit {
		t.Errorf("coil write = %+v", writes[0])
	}
	if writes[1].kind != "word" || writes[1].addr != 5 || writes[1].word != 1234 {
		t.Errorf("word write = %+v", writes[1])
	}
	if writes[2].kind != "words" || writes[2].addr != 7 {
		t.Errorf("wide write = %+v", writes[2])
	}
	if len(writes[2].words) != 2 || writes[2].words[0] != 0x1234 || writes[2].words[1] != 0x5678 {
		t.Errorf("wide write words = %04X", writes[2].words)
	}
}

// reentrantClient trips if two calls overlap on the same instance.
type reentrantClient struct {
	busy int32
	err  error
}

func (c *reentrantClient) enter() {
	if !atomic.CompareAndSwapInt32(&c.busy, 0, 1) {
		c.err = errors.New("client re-entered")
		return
	}
	time.Sleep(time.Millisecond)
	atomic.StoreInt32(&c.busy, 0)
}

func (c *reentrantClient) Connect() bool { return true }
func (c *reentrantClient) Disconnect()   {}

func (c *reentrantClient) ReadBits(uint8, AddressSpace, uint16, uint16) ([]bool, error) {
	c.enter()
	return nil, nil
}

func (c *reentrantClient) ReadWords(uint8, AddressSpace, uint16, uint16) ([]uint16, error) {
	c.enter()
	return nil, nil
}

func (c *reentrantClient) WriteBit(uint8, uint16, bool) (bool, error)    { c.enter(); return true, nil }
func (c *reentrantClient) WriteWord(uint8, uint16, uint16) (bool, error) { c.enter(); return true, nil }
func (c *reentrantClient) WriteBits(uint8, uint16, []bool) (bool, error) { c.enter(); return true, nil }
func (c *reentrantClient) WriteWords(uint8, uint16, []uint16) (bool, error) {
	c.enter()
	return true, nil
}

func TestIOSerializedPerConnection(t *testing.T) {
	client := &reentrantClient{}
	factory := func(ConnectionProfile) (Client, error) { return client, nil }
	reg := New(factory, zerolog.Nop())
	reg.AddConnection(profile("c1"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				reg.ReadWords("c1", 1, HoldingRegister, 0, 10)
				reg.WriteWord("c1", 1, 0, 1)
			}
		}()
	}
	wg.Wait()

	if client.err != nil {
		t.Fatalf("connection lock failed: %v", client.err)
	}
}

func TestIOAgainstMissingConnection(t *testing.T) {
	reg, _ := newTestRegistry()

	if _, err := reg.ReadWords("nope", 1, HoldingRegister, 0, 10); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("ReadWords: got %v", err)
	}
	if _, err := reg.WriteWord("nope", 1, 0, 1); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("WriteWord: got %v", err)
	}
}
