package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuport/portal-api/internal/models"
)

func testIdentity() models.Identity {
	return models.Identity{
		UserID:   "usr-1234",
		Email:    "dist@example.com",
		Role:     models.RoleDistributor,
		FullName: "Dist One",
		Status:   models.StatusActive,
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	issued, err := codec.Issue(testIdentity(), time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, issued)

	identity, err := codec.Parse(issued)
	require.NoError(t, err)
	assert.Equal(t, "usr-1234", identity.UserID)
	assert.Equal(t, "dist@example.com", identity.Email)
	assert.Equal(t, models.RoleDistributor, identity.Role)
	assert.Equal(t, "Dist One", identity.FullName)
}

func TestCodec_Issue_RejectsNonPositiveTTL(t *testing.T) {
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	_, err = codec.Issue(testIdentity(), 0)
	assert.Error(t, err)

	_, err = codec.Issue(testIdentity(), -time.Minute)
	assert.Error(t, err)
}

func TestCodec_Parse_Expired(t *testing.T) {
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	issued, err := codec.Issue(testIdentity(), time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = codec.Parse(issued)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCodec_Parse_TamperedToken(t *testing.T) {
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	issued, err := codec.Issue(testIdentity(), time.Hour)
	require.NoError(t, err)

	// Flip a single character in every token segment; each mutation must
	// yield the same opaque failure.
	for _, pos := range []int{2, len(issued) / 2, len(issued) - 2} {
		mutated := []byte(issued)
		if mutated[pos] == 'A' {
			mutated[pos] = 'B'
		} else {
			mutated[pos] = 'A'
		}

		_, err := codec.Parse(string(mutated))
		assert.ErrorIs(t, err, ErrInvalidToken, "mutation at %d should invalidate the token", pos)
	}
}

func TestCodec_Parse_WrongSecret(t *testing.T) {
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)
	other, err := NewCodec("another-secret", "portal-api")
	require.NoError(t, err)

	issued, err := codec.Issue(testIdentity(), time.Hour)
	require.NoError(t, err)

	_, err = other.Parse(issued)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Parse_Garbage(t *testing.T) {
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	for _, tok := range []string{"", "   ", "not-a-token", "a.b", strings.Repeat("x", 512)} {
		_, err := codec.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestCodec_Parse_WrongIssuer(t *testing.T) {
	foreign, err := NewCodec("test-secret", "someone-else")
	require.NoError(t, err)
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	issued, err := foreign.Issue(testIdentity(), time.Hour)
	require.NoError(t, err)

	_, err = codec.Parse(issued)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Parse_InvalidRoleClaim(t *testing.T) {
	codec, err := NewCodec("test-secret", "portal-api")
	require.NoError(t, err)

	id := testIdentity()
	id.Role = models.Role("SUPERVISOR")

	issued, err := codec.Issue(id, time.Hour)
	require.NoError(t, err)

	_, err = codec.Parse(issued)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
