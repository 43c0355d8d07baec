package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIsStable(t *testing.T) {
	a := Derive(42, "P1", "initial_assessment", "0")
	b := Derive(42, "P1", "initial_assessment", "0")

	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, int64(0))
}

func TestDeriveIsPathSensitive(t *testing.T) {
	base := Derive(42, "P1", "phase", "0")

	assert.NotEqual(t, base, Derive(42, "P1", "phase", "1"))
	assert.NotEqual(t, base, Derive(42, "P2", "phase", "0"))
	assert.NotEqual(t, base, Derive(43, "P1", "phase", "0"))
}

func TestDeriveLabelBoundaries(t *testing.T) {
	// ("ab","c") and ("a","bc") must not collide.
	assert.NotEqual(t, Derive(1, "ab", "c"), Derive(1, "a", "bc"))
}

func TestDeriveIndependentOfOtherPaths(t *testing.T) {
	// Deriving unrelated paths in between must not disturb a stream.
	first := Derive(7, "entity", "age")

	for i := 0; i < 100; i++ {
		Derive(7, "entity", "weight")
	}

	assert.Equal(t, first, Derive(7, "entity", "age"))
}

func TestManagerMatchesFreeFunction(t *testing.T) {
	m := NewManager(99)

	assert.Equal(t, Derive(99, "x", "y"), m.Derive("x", "y"))
	assert.Equal(t, Digest(99, "x"), m.Digest("x"))
	assert.Equal(t, int64(99), m.Master())
}
