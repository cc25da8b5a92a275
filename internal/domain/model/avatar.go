// Package model contains domain models passed between layers.
package model

// Avatar is the persisted record of one minted blindbox token.
// Revealed implies Slot is set; neither field is ever cleared.
type Avatar struct {
	TokenID  uint64
	Slot     *uint64
	Revealed bool
}

// AssignedSlot returns the slot and whether one is set.
func (a Avatar) AssignedSlot() (uint64, bool) {
	if a.Slot == nil {
		return 0, false
	}
	return *a.Slot, true
}

// Soulbound is a soulbound token record. Type holds the rarity exactly as the
// record store returned it; callers convert it with rarity.Parse.
type Soulbound struct {
	TokenID uint64
	Type    any
}

// RevealMapping binds a revealed slot to the metadata file it unlocks.
type RevealMapping struct {
	Slot       uint64
	MetadataID uint64
}

// RevealJob is a unit of batch reveal work.
type RevealJob struct {
	BatchID  string
	AvatarID uint64
}

// RevealOutcome reports the result of one batch job.
type RevealOutcome struct {
	AvatarID uint64
	Slot     uint64
	Err      error
}
