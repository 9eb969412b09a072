package pool

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		key, err := NewKey("user-1", "proj_2.main", 64)
		require.NoError(t, err)
		assert.Equal(t, "user-1", key.UserID)
		assert.Equal(t, "proj_2.main", key.ProjectID)
	})

	t.Run("EmptyUser", func(t *testing.T) {
		_, err := NewKey("", "p1", 64)
		require.Error(t, err)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "user_id", ve.Field)
	})

	t.Run("EmptyProject", func(t *testing.T) {
		_, err := NewKey("u1", "", 64)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "project_id", ve.Field)
	})

	t.Run("TooLong", func(t *testing.T) {
		_, err := NewKey(strings.Repeat("a", 65), "p1", 64)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 64 characters")
	})

	// The cache key uses ':' as a separator, so identifiers containing it
	// must be rejected to prevent cross-tenant key injection.
	t.Run("DisallowedCharacters", func(t *testing.T) {
		for _, id := range []string{"u:1", "u/1", "u 1", "u*1", "ü1"} {
			_, err := NewKey(id, "p1", 64)
			assert.Error(t, err, "id %q should be rejected", id)
		}
	})
}

func TestKeyEquality(t *testing.T) {
	a := Key{UserID: "u1", ProjectID: "p1"}
	b := Key{UserID: "u1", ProjectID: "p1"}
	c := Key{UserID: "u1", ProjectID: "p2"}

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	m := map[Key]int{a: 1}
	assert.Equal(t, 1, m[b])
}

func TestCacheKey(t *testing.T) {
	key := Key{UserID: "u1", ProjectID: "p1"}
	assert.Equal(t, "sandbox:u1:p1", key.CacheKey())
	assert.Equal(t, "u1/p1", key.String())
}
