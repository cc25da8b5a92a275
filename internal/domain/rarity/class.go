// Package rarity models blindbox rarity classes and resolves the class of an
// avatar from its soulbound link.
package rarity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Class is a closed set of rarity tiers. The numeric values match the ordinal
// stored in soulbound records.
type Class uint8

const (
	Legendary Class = iota
	Epic
	Rare
	Common
)

// All lists the classes in declared pool order.
var All = []Class{Legendary, Epic, Rare, Common}

var names = [...]string{"legendary", "epic", "rare", "common"}

func (c Class) String() string {
	if c.Valid() {
		return names[c]
	}
	return "class(" + strconv.Itoa(int(c)) + ")"
}

// Valid reports whether c is one of the four known classes.
func (c Class) Valid() bool { return c <= Common }

// MarshalText renders the class name.
func (c Class) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRarityClass, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText accepts a class name or ordinal.
func (c *Class) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Parse converts a loosely typed stored value into a Class. Integers (of any
// width), integral floats, json.Number, ordinal strings and case-insensitive
// names are accepted; anything else fails with ErrInvalidRarityClass.
func Parse(v any) (Class, error) {
	switch t := v.(type) {
	case Class:
		return fromInt64(int64(t), v)
	case int:
		return fromInt64(int64(t), v)
	case int8:
		return fromInt64(int64(t), v)
	case int16:
		return fromInt64(int64(t), v)
	case int32:
		return fromInt64(int64(t), v)
	case int64:
		return fromInt64(t, v)
	case uint:
		return fromUint64(uint64(t), v)
	case uint8:
		return fromUint64(uint64(t), v)
	case uint16:
		return fromUint64(uint64(t), v)
	case uint32:
		return fromUint64(uint64(t), v)
	case uint64:
		return fromUint64(t, v)
	case float32:
		return fromFloat(float64(t), v)
	case float64:
		return fromFloat(t, v)
	case json.Number:
		return Parse(string(t))
	case []byte:
		return Parse(string(t))
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		for i, n := range names {
			if s == n {
				return Class(i), nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromInt64(n, v)
		}
	}
	return 0, fmt.Errorf("%w: %v (%T)", ErrInvalidRarityClass, v, v)
}

func fromInt64(n int64, raw any) (Class, error) {
	if n < 0 || n > int64(Common) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRarityClass, raw)
	}
	return Class(n), nil
}

func fromUint64(n uint64, raw any) (Class, error) {
	if n > uint64(Common) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRarityClass, raw)
	}
	return Class(n), nil
}

func fromFloat(f float64, raw any) (Class, error) {
	if math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRarityClass, raw)
	}
	return fromInt64(int64(f), raw)
}
