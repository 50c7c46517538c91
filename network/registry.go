package network

import (
	"fmt"

	"github.com/jxsl13/netsession/protocol"
)

type registrySlot struct {
	def   Definition
	inUse bool
}

// Registry maps every message type id to its definition.
// The zero value is an empty registry.
type Registry struct {
	slots [256]registrySlot
}

// Register adds the definition for t. A type can only be registered once.
func (r *Registry) Register(t protocol.MsgType, def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("failed to register %s: %w", t, err)
	}
	slot := &r.slots[t]
	if slot.inUse {
		return fmt.Errorf("failed to register %s: %w", t, ErrMessageTypeInUse)
	}
	slot.def = def
	slot.inUse = true
	return nil
}

func (r *Registry) Lookup(t protocol.MsgType) (Definition, bool) {
	slot := &r.slots[t]
	return slot.def, slot.inUse
}
