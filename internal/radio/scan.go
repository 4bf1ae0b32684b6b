package radio

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"
)

// Framer cuts a serial byte stream into MAVLink v1 frames. Bytes before a
// start marker are skipped. A marker followed by a message id the link does
// not carry, a wrong length or a bad checksum is not a frame: the framer
// resynchronises one byte past it, so noise never swallows the frames behind
// it.
type Framer struct {
	skipped atomic.Uint64
	corrupt atomic.Uint64
}

// Split is a bufio.SplitFunc.
func (f *Framer) Split(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for {
		i := bytes.IndexByte(data[advance:], stx)
		if i < 0 {
			f.skipped.Add(uint64(len(data) - advance))
			return len(data), nil, nil
		}
		if i > 0 {
			f.skipped.Add(uint64(i))
			advance += i
		}
		rest := data[advance:]
		if len(rest) < headerLen {
			return f.needMore(advance, len(data), atEOF)
		}
		n := int(rest[1])
		info, known := messages[rest[5]]
		if !known || n != int(info.length) {
			// not a real marker
			f.skipped.Add(1)
			advance++
			continue
		}
		total := n + frameOverhead
		if len(rest) < total {
			return f.needMore(advance, len(data), atEOF)
		}
		frame := rest[:total]
		if checksum(frame[1:headerLen+n], info.rw.CRCExtra()) != binary.LittleEndian.Uint16(frame[headerLen+n:]) {
			f.corrupt.Add(1)
			advance++
			continue
		}
		return advance + total, frame, nil
	}
}

func (f *Framer) needMore(advance, have int, atEOF bool) (int, []byte, error) {
	if atEOF {
		f.skipped.Add(uint64(have - advance))
		return have, nil, nil
	}
	return advance, nil, nil
}

// Skipped is the number of bytes discarded while looking for a frame.
func (f *Framer) Skipped() uint64 { return f.skipped.Load() }

// Corrupt is the number of frames dropped for a bad checksum.
func (f *Framer) Corrupt() uint64 { return f.corrupt.Load() }
