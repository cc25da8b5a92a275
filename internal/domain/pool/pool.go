// Package pool describes the static slot layout: rarity pools, the overflow
// domain and the VRF seed, and the arithmetic that maps an avatar onto it.
package pool

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/okian/blindbox/internal/domain/rarity"
)

// DefaultSeed is the production VRF output.
const DefaultSeed = "54358093964092200195992964211992512825669242235183240952295200998486985634194"

// DefaultPoolSize is the size of every pool in the default layout.
const DefaultPoolSize = 15

// Pool is a contiguous slot range owned by one rarity class. Start/Size is
// the live window used for allocation; OriginalStart/OriginalSize is the
// window used to decide which pool a raw slot naturally belongs to.
type Pool struct {
	Class         rarity.Class
	Start         uint64
	Size          uint64
	OriginalStart uint64
	OriginalSize  uint64
}

// End is the exclusive upper bound of the current window.
func (p Pool) End() uint64 { return p.Start + p.Size }

// Contains reports whether slot lies in the current window.
func (p Pool) Contains(slot uint64) bool {
	return slot >= p.Start && slot < p.End()
}

// NaturallyContains reports whether slot lies in the original window.
func (p Pool) NaturallyContains(slot uint64) bool {
	return slot >= p.OriginalStart && slot-p.OriginalStart < p.OriginalSize
}

// SlotAt narrows an offset into the current window.
func (p Pool) SlotAt(offset uint64) uint64 {
	return p.Start + offset%p.Size
}

func (p Pool) String() string {
	return fmt.Sprintf("%s[%d,%d)", p.Class, p.Start, p.End())
}

// OverflowDomain is the wide range seed+avatar is folded into before being
// narrowed into a pool.
type OverflowDomain struct {
	Start uint64
	Size  uint64
}

// Layout is the immutable allocation configuration.
type Layout struct {
	Pools    []Pool
	Overflow OverflowDomain
	Seed     *big.Int
}

// DefaultPools returns Legendary [0,15), Epic [15,30), Rare [30,45), Common [45,60).
func DefaultPools() []Pool {
	pools := make([]Pool, 0, len(rarity.All))
	for i, c := range rarity.All {
		start := uint64(i) * DefaultPoolSize
		pools = append(pools, Pool{
			Class:         c,
			Start:         start,
			Size:          DefaultPoolSize,
			OriginalStart: start,
			OriginalSize:  DefaultPoolSize,
		})
	}
	return pools
}

// DefaultOverflow returns {Start: 1, Size: 99,999,999}.
func DefaultOverflow() OverflowDomain {
	return OverflowDomain{Start: 1, Size: 99_999_999}
}

// DefaultLayout returns the production layout.
func DefaultLayout() Layout {
	seed, _ := ParseSeed(DefaultSeed)
	return Layout{Pools: DefaultPools(), Overflow: DefaultOverflow(), Seed: seed}
}

// ParseSeed parses a decimal (or 0x-prefixed hex) seed of arbitrary width.
func ParseSeed(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if hex, found := strings.CutPrefix(strings.ToLower(s), "0x"); found {
		s, base = hex, 16
	}
	seed, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, s)
	}
	if seed.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative seed", ErrInvalidSeed)
	}
	return seed, nil
}

// MaxSlot bounds every pool window. The redis store scores revealed slots as
// float64 and the SQL stores bit-cast slots into BIGINT; both count ranges
// exactly only below 2^53.
const MaxSlot = uint64(1) << 53

// Validate checks the structural invariants of the layout.
func (l Layout) Validate() error {
	if l.Seed == nil {
		return fmt.Errorf("%w: seed is required", ErrInvalidLayout)
	}
	if l.Overflow.Size == 0 {
		return fmt.Errorf("%w: overflow size must be positive", ErrInvalidLayout)
	}
	if len(l.Pools) == 0 {
		return fmt.Errorf("%w: at least one pool is required", ErrInvalidLayout)
	}
	seen := make(map[rarity.Class]bool, len(l.Pools))
	for i, p := range l.Pools {
		if !p.Class.Valid() {
			return fmt.Errorf("%w: pool %d has class %s", ErrInvalidLayout, i, p.Class)
		}
		if seen[p.Class] {
			return fmt.Errorf("%w: duplicate pool for %s", ErrInvalidLayout, p.Class)
		}
		seen[p.Class] = true
		if p.Size == 0 || p.OriginalSize == 0 {
			return fmt.Errorf("%w: pool %s has zero size", ErrInvalidLayout, p.Class)
		}
		if p.Size > MaxSlot || p.OriginalSize > MaxSlot ||
			p.Start > MaxSlot-p.Size || p.OriginalStart > MaxSlot-p.OriginalSize {
			return fmt.Errorf("%w: pool %s ends beyond slot 2^53", ErrInvalidLayout, p.Class)
		}
		for _, q := range l.Pools[:i] {
			if p.Start < q.End() && q.Start < p.End() {
				return fmt.Errorf("%w: pools %s and %s overlap", ErrInvalidLayout, q, p)
			}
		}
	}
	for _, c := range rarity.All {
		if !seen[c] {
			return fmt.Errorf("%w: no pool for %s", ErrInvalidLayout, c)
		}
	}
	return nil
}

// BaseOffset computes (seed + avatarID) mod size without loss of precision.
func BaseOffset(seed *big.Int, avatarID, size uint64) uint64 {
	sum := new(big.Int).Add(seed, new(big.Int).SetUint64(avatarID))
	return sum.Mod(sum, new(big.Int).SetUint64(size)).Uint64()
}

// Offset is BaseOffset over the layout's seed and overflow domain.
func (l Layout) Offset(avatarID uint64) uint64 {
	return BaseOffset(l.Seed, avatarID, l.Overflow.Size)
}

// RawSlot maps an offset into the overflow domain.
func (l Layout) RawSlot(offset uint64) uint64 {
	return l.Overflow.Start + offset
}

// NaturalPool returns the pool whose original window contains raw, falling
// back to the Common pool.
func (l Layout) NaturalPool(raw uint64) Pool {
	for _, p := range l.Pools {
		if p.NaturallyContains(raw) {
			return p
		}
	}
	return l.Common()
}

// Common returns the Common pool.
func (l Layout) Common() Pool {
	p, _ := l.PoolOf(rarity.Common)
	return p
}

// PoolOf returns the pool owned by class.
func (l Layout) PoolOf(class rarity.Class) (Pool, bool) {
	for _, p := range l.Pools {
		if p.Class == class {
			return p, true
		}
	}
	return Pool{}, false
}
