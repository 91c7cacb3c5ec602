package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyManager_Generate(t *testing.T) {
	m := NewAPIKeyManager()

	plainKey, keyHash, keyPrefix, err := m.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plainKey, "sk_"))
	assert.Equal(t, plainKey[:10], keyPrefix)
	assert.Equal(t, m.Hash(plainKey), keyHash)
	assert.NotContains(t, keyHash, plainKey)

	// Each generation is unique
	plainKey2, keyHash2, _, err := m.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, plainKey, plainKey2)
	assert.NotEqual(t, keyHash, keyHash2)
}

func TestAPIKeyManager_ValidateFormat(t *testing.T) {
	m := NewAPIKeyManager()

	plainKey, _, _, err := m.Generate()
	require.NoError(t, err)
	assert.NoError(t, m.ValidateFormat(plainKey))

	assert.Error(t, m.ValidateFormat(""))
	assert.Error(t, m.ValidateFormat("pk_"+plainKey[3:]))
	assert.Error(t, m.ValidateFormat("sk_tooshort"))
	assert.Error(t, m.ValidateFormat(plainKey+"extra"))
}

func TestAPIKeyManager_HashIsDeterministic(t *testing.T) {
	m := NewAPIKeyManager()
	assert.Equal(t, m.Hash("sk_abc"), m.Hash("sk_abc"))
	assert.NotEqual(t, m.Hash("sk_abc"), m.Hash("sk_abd"))
}
