package protocol

import "github.com/pkg/errors"

// Frame is one decoded block.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// EncodeFrame wraps payload with header, CRC and sync byte. Only the low
// four bits of seq are sent.
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MessagePayloadMax {
		return nil, errors.Wrapf(ErrFrameTooLong, "%d bytes (max %d)", len(payload), MessagePayloadMax)
	}
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	out := make([]byte, 0, msgLen)
	out = append(out, uint8(msgLen), MessageDest|seq&MessageSeqMask)
	out = append(out, payload...)
	crc := CRC16(out)
	return append(out, uint8(crc>>8), uint8(crc), MessageValueSync), nil
}

// FrameReader reassembles frames from an arbitrarily chunked byte stream.
// On a bad length, destination, CRC or sync byte it drops input up to the
// next sync byte and carries on.
type FrameReader struct {
	input        *ByteRing
	synchronized bool
	resyncs      int
}

// NewFrameReader returns a reader buffering up to two maximum size frames.
func NewFrameReader() *FrameReader {
	return &FrameReader{
		input:        NewByteRing(2 * MessageLengthMax),
		synchronized: true,
	}
}

// Feed consumes data and returns every frame completed by it. Payloads are
// copies and stay valid.
func (r *FrameReader) Feed(data []byte) []Frame {
	var frames []Frame
	for len(data) > 0 {
		n := r.input.Write(data)
		data = data[n:]
		frames = append(frames, r.process()...)
		if n == 0 && r.input.Free() == 0 {
			// A full ring that yields no frame holds garbage.
			r.input.Reset()
			r.lostSync()
		}
	}
	return frames
}

// Resyncs returns how many times the reader lost frame alignment.
func (r *FrameReader) Resyncs() int { return r.resyncs }

func (r *FrameReader) lostSync() {
	if r.synchronized {
		r.resyncs++
	}
	r.synchronized = false
}

func (r *FrameReader) process() []Frame {
	var frames []Frame
	data := r.input.Data()

	for len(data) > 0 {
		if !r.synchronized {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			r.synchronized = true
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin {
			r.lostSync()
			continue
		}
		if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
			r.lostSync()
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			r.lostSync()
			continue
		}
		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			r.lostSync()
			continue
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])
		frames = append(frames, Frame{
			Seq:     data[MessagePositionSeq] & MessageSeqMask,
			Payload: payload,
		})
		data = data[msgLen:]
	}

	r.input.Pop(r.input.Available() - len(data))
	return frames
}
