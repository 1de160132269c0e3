package protocol

// AppendVLQ appends v in Klipper's variable length encoding: seven bits
// per byte, most significant first, with the sign carried by bits 6..5 of
// the leading byte.
func AppendVLQ(buf []byte, v int32) []byte {
	if !(-(1<<26) <= v && v < (3<<26)) {
		buf = append(buf, byte((v>>28)&0x7F)|0x80)
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		buf = append(buf, byte((v>>21)&0x7F)|0x80)
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		buf = append(buf, byte((v>>14)&0x7F)|0x80)
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		buf = append(buf, byte((v>>7)&0x7F)|0x80)
	}
	return append(buf, byte(v&0x7F))
}

// AppendVLQUint appends an unsigned value; it shares the signed encoding.
func AppendVLQUint(buf []byte, v uint32) []byte {
	return AppendVLQ(buf, int32(v))
}

// ReadVLQ decodes one value and advances data past it.
func ReadVLQ(data *[]byte) (int32, error) {
	if len(*data) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7F
	if (c & 0x60) == 0x60 {
		v |= ^uint32(0x1F)
	}

	for n := 1; c&0x80 != 0; n++ {
		if n == 5 {
			return 0, ErrInvalidVLQ
		}
		if len(*data) == 0 {
			return 0, ErrBufferTooSmall
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = (v << 7) | (c & 0x7F)
	}

	return int32(v), nil
}

func ReadVLQUint(data *[]byte) (uint32, error) {
	val, err := ReadVLQ(data)
	return uint32(val), err
}

// AppendVLQUint64 writes v as two unsigned values, high word first.
func AppendVLQUint64(buf []byte, v uint64) []byte {
	buf = AppendVLQUint(buf, uint32(v>>32))
	return AppendVLQUint(buf, uint32(v))
}

func ReadVLQUint64(data *[]byte) (uint64, error) {
	hi, err := ReadVLQUint(data)
	if err != nil {
		return 0, err
	}
	lo, err := ReadVLQUint(data)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// AppendVLQBytes appends data with a length prefix.
func AppendVLQBytes(buf []byte, data []byte) []byte {
	buf = AppendVLQUint(buf, uint32(len(data)))
	return append(buf, data...)
}

// ReadVLQBytes decodes a length prefixed byte string. The result aliases
// data.
func ReadVLQBytes(data *[]byte) ([]byte, error) {
	length, err := ReadVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < length {
		return nil, ErrBufferTooSmall
	}
	result := (*data)[:length]
	*data = (*data)[length:]
	return result, nil
}
