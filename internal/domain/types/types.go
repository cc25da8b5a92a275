// Package types contains the response shapes shared by the service and the HTTP API.
package types

// RevealResult is returned after a successful reveal.
type RevealResult struct {
	AvatarID uint64 `json:"avatar_id"`
	Slot     uint64 `json:"slot"`
	Rarity   string `json:"rarity"`
}

// Metadata is the token metadata served for an avatar. Before reveal it is the
// placeholder for the avatar's rarity class; after reveal URI points at the
// final metadata file.
type Metadata struct {
	AvatarID    uint64 `json:"avatar_id"`
	Revealed    bool   `json:"revealed"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Rarity      string `json:"rarity,omitempty"`
	URI         string `json:"uri,omitempty"`
}

// PoolStatus describes the live occupancy of one pool.
type PoolStatus struct {
	Rarity   string `json:"rarity"`
	Start    uint64 `json:"start"`
	Size     uint64 `json:"size"`
	Revealed uint64 `json:"revealed"`
	Full     bool   `json:"full"`
}
