package vkrender

import (
	"bytes"
	"log"
	"testing"

	"github.com/YulFi/framework-multi-api/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIndexBufferRecordsElementType(t *testing.T) {
	r := &Renderer{Log: discardLogger()}

	ib, err := r.CreateIndexBuffer()
	require.NoError(t, err)
	assert.Equal(t, render.IndexUint32, ib.(*IndexBuffer).indexType)
}

func TestIndexedDrawBindsRecordedType(t *testing.T) {
	var logged bytes.Buffer
	r := &Renderer{Log: log.New(&logged, "", 0)}
	b := &IndexBuffer{renderer: r, indexType: render.IndexUint32}

	assert.Equal(t, render.IndexUint32, b.bindIndexType(render.IndexUint32))
	assert.Zero(t, logged.Len())

	// A 16-bit draw request against a 32-bit upload must not make the draw
	// misread the buffer: the recorded type wins and the mismatch is logged.
	assert.Equal(t, render.IndexUint32, b.bindIndexType(render.IndexUint16))
	assert.Contains(t, logged.String(), "4-byte")
}
