// SPDX-License-Identifier: MIT

package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblerPartialChunks(t *testing.T) {
	a := newAssembler(6, 4)

	a.push([]byte{1, 2, 3})
	assert.Nil(t, a.next(), "half a frame is not enough")

	a.push([]byte{4, 5, 6, 7, 8})
	frame := a.next()
	require.NotNil(t, frame)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, frame)

	// The remainder is retained.
	assert.Equal(t, 2, a.pending())
	assert.Nil(t, a.next())
}

func TestAssemblerMultipleFramesPerChunk(t *testing.T) {
	a := newAssembler(2, 4)
	a.push([]byte{1, 2, 3, 4, 5})

	assert.Equal(t, []byte{1, 2}, a.next())
	assert.Equal(t, []byte{3, 4}, a.next())
	assert.Nil(t, a.next())
	assert.Equal(t, 1, a.pending())
}

func TestAssemblerCapDropsOldestFrames(t *testing.T) {
	a := newAssembler(4, 2) // cap: 8 bytes

	a.push(bytes.Repeat([]byte{1}, 4))
	a.push(bytes.Repeat([]byte{2}, 4))
	a.push(bytes.Repeat([]byte{3}, 4)) // overflows, frame 1 dropped

	assert.Equal(t, bytes.Repeat([]byte{2}, 4), a.next())
	assert.Equal(t, bytes.Repeat([]byte{3}, 4), a.next())
	assert.Nil(t, a.next())
}

func TestAssemblerFrameIsACopy(t *testing.T) {
	a := newAssembler(3, 4)
	a.push([]byte{1, 2, 3, 4, 5, 6})

	first := a.next()
	second := a.next()
	assert.Equal(t, []byte{1, 2, 3}, first)
	assert.Equal(t, []byte{4, 5, 6}, second)
	assert.Equal(t, []byte{1, 2, 3}, first, "earlier frame unaffected by later reads")
}
