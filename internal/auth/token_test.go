package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/flowchat/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("secret", 24*time.Hour)
	user := &model.User{ID: "u1", Role: model.RoleAdmin}

	token, err := issuer.Issue(user)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestParseRejectsOtherSecret(t *testing.T) {
	token, err := NewIssuer("secret", time.Hour).Issue(&model.User{ID: "u1", Role: model.RoleUser})
	require.NoError(t, err)

	_, err = NewIssuer("other", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := issuer.Issue(&model.User{ID: "u1", Role: model.RoleUser})
	require.NoError(t, err)

	_, err = NewIssuer("secret", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestParseRejectsUnknownRole(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Issue(&model.User{ID: "u1", Role: "root"})
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
