package network

import "github.com/jxsl13/netsession/protocol"

// idSet is a bitset over the reliable window keyed by id modulo window size.
type idSet [protocol.NetReliableWindow / 64]uint64

func (s *idSet) has(id uint16) bool {
	i := int(id) % protocol.NetReliableWindow
	return s[i/64]&(1<<(i%64)) != 0
}

func (s *idSet) set(id uint16) {
	i := int(id) % protocol.NetReliableWindow
	s[i/64] |= 1 << (i % 64)
}

func (s *idSet) clear(id uint16) {
	i := int(id) % protocol.NetReliableWindow
	s[i/64] &^= 1 << (i % 64)
}

func (s *idSet) reset() {
	*s = idSet{}
}
