package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceID_DeterministicForFixedInputs(t *testing.T) {
	a := InstanceID("creds-1", "uuid-1")
	b := InstanceID("creds-1", "uuid-1")
	assert.Equal(t, a, b)
}

func TestInstanceID_DiffersAcrossCredentials(t *testing.T) {
	a := InstanceID("creds-1", "uuid-1")
	b := InstanceID("creds-2", "uuid-1")
	assert.NotEqual(t, a, b)
}

func TestInstanceID_DiffersAcrossUUID(t *testing.T) {
	a := InstanceID("creds-1", "uuid-1")
	b := InstanceID("creds-1", "uuid-2")
	assert.NotEqual(t, a, b)
}

func TestInstanceID_ConcatenationBoundaryIsNotAmbiguous(t *testing.T) {
	// "ab:c" + "d" and "ab" + "c:d" must not collide via the ":" join.
	a := InstanceID("ab", "c:d")
	b := InstanceID("ab:c", "d")
	assert.NotEqual(t, a, b)
}
