package protocol

// CRC16 is the CCITT checksum Klipper uses on its frames (reflected
// polynomial 0x8408, initial value 0xffff, no final xor).
func CRC16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, d := range data {
		d ^= byte(crc)
		d ^= d << 4
		x := uint16(d)
		crc = (x<<8 | crc>>8) ^ x>>4 ^ x<<3
	}
	return crc
}
