package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndNew(t *testing.T) {
	Register("test-backend", func() Renderer { return nil })

	r, err := New("test-backend")
	require.NoError(t, err)
	assert.Nil(t, r)

	assert.Contains(t, Backends(), "test-backend")
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New("no-such-backend")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-backend")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("dup-backend", func() Renderer { return nil })
	assert.Panics(t, func() {
		Register("dup-backend", func() Renderer { return nil })
	})
}

func TestIndexTypeSize(t *testing.T) {
	assert.Equal(t, 2, IndexUint16.Size())
	assert.Equal(t, 4, IndexUint32.Size())
}
