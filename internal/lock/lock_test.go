package lock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localkb/knowledgebase/internal/errors"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, ".document-data.db")

	l := New(cachePath)
	require.NoError(t, l.Acquire())
	assert.True(t, l.Held())
	assert.Equal(t, cachePath+".lock", l.Path())

	require.NoError(t, l.Release())
	assert.False(t, l.Held())
}

func TestAcquire_ContendedReturnsLockContention(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, ".document-data.db")

	first := New(cachePath)
	require.NoError(t, first.Acquire())
	defer first.Release()

	second := New(cachePath)
	savedTimeout := DefaultRetryTimeout
	DefaultRetryTimeout = 100 * time.Millisecond
	defer func() { DefaultRetryTimeout = savedTimeout }()

	err := second.Acquire()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeLockContention, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestWithLock_ReleasesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, ".document-data.db")

	ran := false
	err := WithLock(cachePath, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	l := New(cachePath)
	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
}

func TestReleaseWithoutAcquire_NoOp(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), ".document-data.db"))
	require.NoError(t, l.Release())
}
