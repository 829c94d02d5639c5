package rwb

// slotState is the enum representing the state of the cache slot.
type slotState byte

// Enum of possible slot states.
const (
	freeSlotState slotState = iota
	invalidSlotState
	fetchedSlotState
	dirtySlotState
)

// header stores the metadata of cached block.
type header struct {
	Address uint64
	State   slotState
}
