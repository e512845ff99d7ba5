// Package uid generates DICOM unique identifiers.
package uid

import (
	"fmt"
	"hash/fnv"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// Root is the organizational root all generated UIDs start from. UIDs are
// limited to 64 characters of digits and dots.
const Root = "1.2.826.0.1.3680043.8.498."

const maxUIDLength = 64

// Generator produces UIDs. Implementations must return valid UIDs: digits
// and dots only, no component with a leading zero, at most 64 characters.
type Generator interface {
	New() string
}

// RandomGenerator derives each UID from a fresh random UUID.
type RandomGenerator struct{}

// New returns a UID built from the decimal form of a random UUID.
func (RandomGenerator) New() string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	return clamp(Root + n.String())
}

// DeterministicGenerator derives UIDs from a seed string, producing the
// same sequence for the same seed. Intended for tests and reproducible
// fixtures.
type DeterministicGenerator struct {
	seed    string
	counter uint64
}

// NewDeterministicGenerator returns a generator seeded with the given string.
func NewDeterministicGenerator(seed string) *DeterministicGenerator {
	return &DeterministicGenerator{seed: seed}
}

// New returns the next UID in the seeded sequence.
func (g *DeterministicGenerator) New() string {
	g.counter++
	return FromSeed(fmt.Sprintf("%s#%d", g.seed, g.counter))
}

// FromSeed maps an arbitrary string to a UID. The same seed always yields
// the same UID.
func FromSeed(seed string) string {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return clamp(Root + fmt.Sprintf("%d", h.Sum64()))
}

// clamp enforces the 64-character limit, trimming any trailing dot the cut
// may leave behind.
func clamp(u string) string {
	if len(u) > maxUIDLength {
		u = u[:maxUIDLength]
		u = strings.TrimRight(u, ".")
	}
	return u
}
