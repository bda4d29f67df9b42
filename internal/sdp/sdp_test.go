// SPDX-License-Identifier: MIT

package sdp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	doc := Describe("192.168.1.10", 5000)

	assert.Contains(t, doc, "c=IN IP4 192.168.1.10")
	assert.Contains(t, doc, "m=video 5000 RTP/AVP 96")
	assert.Contains(t, doc, "a=rtpmap:96 H264/90000")
	assert.Contains(t, doc, "profile-level-id=42001f;packetization-mode=1")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.sdp")
	require.NoError(t, WriteFile(path, "10.0.0.2", 5000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Describe("10.0.0.2", 5000), string(data))
}

func TestLocalIPNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, LocalIP())
}
