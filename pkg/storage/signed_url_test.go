package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("job-1", "timetables/tt-1.xlsx")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	claims, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "job-1", claims.JobID)
	require.Equal(t, "timetables/tt-1.xlsx", claims.Path)
	require.WithinDuration(t, expiresAt, claims.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("job-1", "timetables/tt-1.csv")
	require.NoError(t, err)
	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = signer.Parse(token, false)
	require.True(t, errors.Is(err, ErrTokenExpired))

	claims, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "job-1", claims.JobID)
	require.Equal(t, "timetables/tt-1.csv", claims.Path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("job-1", "timetables/tt-1.csv")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Parse(token, false)
	require.True(t, errors.Is(err, ErrTokenInvalid))

	_, err = signer.Parse("not-a-token", false)
	require.True(t, errors.Is(err, ErrTokenInvalid))

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged, _, err := NewSignedURLSigner("secret", time.Hour).Generate("job-2", "timetables/tt-2.csv")
	require.NoError(t, err)
	spliced := strings.Join([]string{parts[0], strings.Split(forged, ".")[1], parts[2]}, ".")
	_, err = signer.Parse(spliced, false)
	require.True(t, errors.Is(err, ErrTokenInvalid))

	_, _, err = signer.Generate("", "x.csv")
	require.Error(t, err)
	_, _, err = NewSignedURLSigner("", time.Hour).Generate("job-1", "x.csv")
	require.Error(t, err)
}
