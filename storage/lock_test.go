package storage

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockDir(t *testing.T) {
	dir := t.TempDir()
	lock, err := LockDir(dir, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, lock.Owner)

	_, err = LockDir(dir, 0)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, lock.Unlock())
	require.NoError(t, lock.Unlock())
	again, err := LockDir(dir, 0)
	require.NoError(t, err)
	assert.NotEqual(t, lock.Owner, again.Owner)
	assert.NoError(t, again.Unlock())
}
