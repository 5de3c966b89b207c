package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(testParams)

	encoded, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.Verify("secret1", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("secret2", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_SaltsDiffer(t *testing.T) {
	h := NewHasher(testParams)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	assert.NotEqual(t, a, b)
}

func TestHasher_InvalidHash(t *testing.T) {
	h := NewHasher(testParams)
	for _, encoded := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$a$b", "$argon2id$v=19$bad$a$b"} {
		_, err := h.Verify("x", encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, encoded)
	}

	_, err := h.Verify("x", "$argon2id$v=16$m=1024,t=1,p=1$YWJj$YWJj")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestHasher_NeedsRehash(t *testing.T) {
	weak := NewHasher(testParams)
	encoded, err := weak.Hash("pw")
	require.NoError(t, err)

	assert.False(t, weak.NeedsRehash(encoded))
	stronger := testParams
	stronger.Iterations = 2
	assert.True(t, NewHasher(stronger).NeedsRehash(encoded))
	assert.True(t, weak.NeedsRehash("garbage"))
}
