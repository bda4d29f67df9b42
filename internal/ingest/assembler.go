// SPDX-License-Identifier: MIT

package ingest

// assembler accumulates raw decoder output and cuts it into fixed-size
// frames. The decoder delivers arbitrary chunk boundaries, so a remainder is
// carried between pushes. The buffer is capped at maxFrames complete frames;
// when the detector stalls and the buffer overflows, the oldest frames are
// dropped in whole-frame units to preserve alignment.
type assembler struct {
	frameSize int
	maxFrames int
	buf       []byte
}

func newAssembler(frameSize, maxFrames int) *assembler {
	if maxFrames < 1 {
		maxFrames = 4
	}
	return &assembler{frameSize: frameSize, maxFrames: maxFrames}
}

// push appends a chunk, evicting oldest complete frames beyond the cap.
func (a *assembler) push(chunk []byte) {
	a.buf = append(a.buf, chunk...)
	max := a.frameSize * a.maxFrames
	for len(a.buf) > max {
		a.buf = a.buf[a.frameSize:]
	}
}

// next returns the oldest complete frame, or nil when none is buffered. The
// returned slice is a copy; the internal buffer is reused.
func (a *assembler) next() []byte {
	if len(a.buf) < a.frameSize {
		return nil
	}
	frame := make([]byte, a.frameSize)
	copy(frame, a.buf[:a.frameSize])
	a.buf = a.buf[:copy(a.buf, a.buf[a.frameSize:])]
	return frame
}

// pending returns the number of buffered bytes.
func (a *assembler) pending() int { return len(a.buf) }
