package fixture

// CRC16Kermit 计算CRC16-Kermit校验值
// 反射式CRC-16，多项式0x8408，初始值0x0000，按字节LSB先行，无最终异或
// 与转台治具单片机固件的校验实现保持一致
func CRC16Kermit(data []byte) uint16 {
	crc := uint16(0x0000)
	for _, b := range data {
		crc ^= uint16(b)
		for j := 0; j < 8; j++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
