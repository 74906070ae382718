package codec

// Checksum16 is CRC-16/ARC as the terminals compute it: reflected polynomial
// 0xA001, register preset to 0xFFFF, one bit at a time.
func Checksum16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, v := range data {
		crc ^= uint16(v) & 0xFF
		for i := 0; i < 8; i++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
