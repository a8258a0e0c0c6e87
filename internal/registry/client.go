// internal/registry/client.go
package registry

// Client is the external protocol collaborator, one per connection.
// The registry depends on this contract only; frame encoding, CRC and
// exception parsing all live behind it.
//
// Implementations are not required to be reentrant: the registry serializes
// every call through the per-connection lock.
type Client interface {
	Connect() bool
	Disconnect()

	ReadBits(unitID uint8, space AddressSpace, startAddr, count uint16) ([]bool, error)
	ReadWords(unitID uint8, space AddressSpace, startAddr, count uint16) ([]uint16, error)

	WriteBit(unitID uint8, addr uint16, value bool) (bool, error)
	WriteWord(unitID uint8, addr uint16, value uint16) (bool, error)
	WriteBits(unitID uint8, startAddr uint16, values []bool) (bool, error)
	WriteWords(unitID uint8, startAddr uint16, values []uint16) (bool, error)
}

// ClientFactory builds a protocol client for a connection profile.
// ONE client per profile; the registry owns its lifecycle.
type ClientFactory func(ConnectionProfile) (Client, error)
