// Package protocol implements the wire format used to stream register
// snapshots off the emulator: Klipper style VLQ integers inside CRC16
// checked, sync terminated frames.
package protocol

import "github.com/pkg/errors"

// Version is the snapshot stream format version, sent nowhere but logged
// by both ends.
const Version = "1"

// Frame layout: [len][0x10|seq][payload...][crc hi][crc lo][0x7e].
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 255
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrFrameTooLong   = errors.New("frame payload too long")
)
