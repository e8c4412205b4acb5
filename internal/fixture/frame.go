package fixture

import (
	"encoding/binary"

	"github.com/wfunc/ate-station/internal/errors"
)

// 帧定义
const (
	FrameSync  uint32 = 0x5AA55AA5 // 同步字
	HeaderSize        = 8          // 同步字(4) + 长度(2) + 报文类型(2)
	FooterSize        = 2          // CRC16(2)
	// TransportOverhead 帧固定开销：帧头(8) + 帧尾(2)
	TransportOverhead = HeaderSize + FooterSize
)

// Frame 治具链路数据帧
// length字段为整帧长度：帧头 + 数据 + CRC
// CRC16覆盖帧头和数据，不含CRC自身
type Frame struct {
	Sync    uint32 // 同步字
	Length  uint16 // 整帧长度
	MsgType uint16 // 报文类型
	Body    []byte // 数据
	CRC16   uint16 // CRC校验
}

// NewFrame 创建新的数据帧
func NewFrame(msgType uint16, body []byte) *Frame {
	f := &Frame{
		Sync:    FrameSync,
		MsgType: msgType,
		Body:    body,
	}

	f.Length = uint16(TransportOverhead + len(body))
	f.CRC16 = f.CalculateCRC()

	return f
}

// headerBytes 序列化帧头（小端序）
func (f *Frame) headerBytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.Sync)
	binary.LittleEndian.PutUint16(buf[4:6], f.Length)
	binary.LittleEndian.PutUint16(buf[6:8], f.MsgType)
	return buf
}

// ToBytes 将帧转换为字节数组
func (f *Frame) ToBytes() []byte {
	buf := make([]byte, 0, f.Length)
	buf = append(buf, f.headerBytes()...)
	buf = append(buf, f.Body...)
	buf = binary.LittleEndian.AppendUint16(buf, f.CRC16)
	return buf
}

// FromBytes 从字节数组解析帧并验证CRC
func (f *Frame) FromBytes(data []byte) error {
	if len(data) < TransportOverhead {
		return errors.Newf(errors.ErrFrameLength, "帧过短: %d < %d", len(data), TransportOverhead)
	}

	sync := binary.LittleEndian.Uint32(data[0:4])
	if sync != FrameSync {
		return errors.Newf(errors.ErrFrameSync, "同步字错误: 0x%08X", sync)
	}

	length := binary.LittleEndian.Uint16(data[4:6])
	if int(length) != len(data) {
		return errors.Newf(errors.ErrFrameLength, "长度字段不匹配: %d != %d", length, len(data))
	}

	f.Sync = sync
	f.Length = length
	f.MsgType = binary.LittleEndian.Uint16(data[6:8])

	bodyLen := int(length) - TransportOverhead
	f.Body = make([]byte, bodyLen)
	copy(f.Body, data[HeaderSize:HeaderSize+bodyLen])

	f.CRC16 = binary.LittleEndian.Uint16(data[length-FooterSize:])

	calcCRC := f.CalculateCRC()
	if calcCRC != f.CRC16 {
		return errors.Newf(errors.ErrCRCMismatch, "calc=0x%04X, recv=0x%04X", calcCRC, f.CRC16)
	}

	return nil
}

// CalculateCRC 计算帧头+数据的CRC16校验值
func (f *Frame) CalculateCRC() uint16 {
	data := make([]byte, 0, HeaderSize+len(f.Body))
	data = append(data, f.headerBytes()...)
	data = append(data, f.Body...)
	return CRC16Kermit(data)
}
