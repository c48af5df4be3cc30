package address

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// legacy re-states the original derivation: int(md5(name).hexdigest(), 16) % 10**8
func legacy(name string) string {
	sum := md5.Sum([]byte(name))
	n, _ := new(big.Int).SetString(fmt.Sprintf("%x", sum), 16)
	return new(big.Int).Mod(n, big.NewInt(100000000)).String()
}

func TestDerive(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a := Derive("Living Room")
		for i := 0; i < 10; i++ {
			assert.Equal(t, a, Derive("Living Room"))
		}
	})

	t.Run("matches the hexdigest reduction", func(t *testing.T) {
		for _, name := range []string{"Living Room", "Home", "Vent 1", "Chambre à coucher", ""} {
			assert.Equal(t, legacy(name), string(Derive(name)), name)
		}
	})

	t.Run("is at most 8 digits", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			a := Derive(fmt.Sprintf("room-%d", i))
			assert.LessOrEqual(t, len(a), 8)
			assert.NotEmpty(t, a)
		}
	})

	t.Run("different names give different addresses", func(t *testing.T) {
		assert.NotEqual(t, Derive("Kitchen"), Derive("Bedroom"))
	})
}

func TestDeriveChild(t *testing.T) {
	t.Run("is the parent prefix followed by the child hash", func(t *testing.T) {
		room := Address("12345678")
		child := DeriveChild("Vent A", room)

		assert.Equal(t, Address("1234"+string(Derive("Vent A"))), child)
	})

	t.Run("short parents are used whole", func(t *testing.T) {
		child := DeriveChild("Vent A", Address("12"))
		assert.Equal(t, Address("12"+string(Derive("Vent A"))), child)
	})

	t.Run("same child name under different rooms does not collide", func(t *testing.T) {
		a := DeriveChild("Vent A", Derive("Room X"))
		b := DeriveChild("Vent A", Derive("Room Y"))
		assert.NotEqual(t, a, b)
	})

	t.Run("no collisions across a sample of rooms and vents", func(t *testing.T) {
		seen := make(map[Address]string)
		prefixes := make(map[string]bool)
		rooms := 0

		for r := 0; r < 60; r++ {
			room := Derive(fmt.Sprintf("Room %d", r))

			// rooms sharing a prefix alias each other's children, see below
			if prefixes[room.Prefix()] {
				continue
			}
			prefixes[room.Prefix()] = true
			rooms++

			for v := 0; v < 8; v++ {
				name := fmt.Sprintf("Vent %d", v)
				child := DeriveChild(name, room)

				prev, dup := seen[child]
				assert.False(t, dup, "collision between %s and %s/%s", prev, room, name)
				seen[child] = string(room) + "/" + name
			}
		}

		assert.Greater(t, rooms, 40)
	})

	t.Run("rooms sharing a prefix collide", func(t *testing.T) {
		a := DeriveChild("Vent A", Address("12345678"))
		b := DeriveChild("Vent A", Address("12349999"))
		assert.Equal(t, a, b)
	})
}
