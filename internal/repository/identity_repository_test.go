package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubjectID(t *testing.T) {
	id, err := parseSubjectID("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"", "0", "-1", "abc", "4.2", " 7"} {
		_, err := parseSubjectID(bad)
		assert.ErrorIs(t, err, ErrInvalidSubject, bad)
	}
}

func TestLookupsRejectMalformedSubjects(t *testing.T) {
	repo := NewIdentityRepository(nil)

	_, err := repo.GetUserByID(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, ErrInvalidSubject)

	_, err = repo.GetUserRoles(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidSubject)
}
