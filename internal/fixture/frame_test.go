package fixture

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/wfunc/ate-station/internal/errors"
)

// TestCRC16Kermit 测试CRC16-Kermit参考向量
func TestCRC16Kermit(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"空输入", []byte(""), 0x0000},
		{"单字节A", []byte("A"), 0x538D},
		{"标准校验串", []byte("123456789"), 0x2189},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16Kermit(tt.data); got != tt.want {
				t.Errorf("CRC16Kermit(%q) = 0x%04X, want 0x%04X", tt.data, got, tt.want)
			}
		})
	}
}

// TestFrameLayout 测试帧的字节布局与长度不变式
func TestFrameLayout(t *testing.T) {
	body := []byte{0x01, 0x2C, 0x01} // op=1, angle=300
	frame := NewFrame(MsgRotate, body)

	// length == 帧头(8) + 数据 + 帧尾(2)
	if int(frame.Length) != HeaderSize+len(body)+FooterSize {
		t.Errorf("Length = %d, want %d", frame.Length, HeaderSize+len(body)+FooterSize)
	}

	raw := frame.ToBytes()
	if len(raw) != int(frame.Length) {
		t.Fatalf("len(ToBytes()) = %d, want %d", len(raw), frame.Length)
	}

	// 同步字（小端序）
	if sync := binary.LittleEndian.Uint32(raw[0:4]); sync != FrameSync {
		t.Errorf("sync = 0x%08X, want 0x%08X", sync, FrameSync)
	}

	// 长度与报文类型
	if l := binary.LittleEndian.Uint16(raw[4:6]); l != frame.Length {
		t.Errorf("length field = %d, want %d", l, frame.Length)
	}
	if mt := binary.LittleEndian.Uint16(raw[6:8]); mt != MsgRotate {
		t.Errorf("msg_type = 0x%04X, want 0x%04X", mt, MsgRotate)
	}

	// 数据
	if !bytes.Equal(raw[8:8+len(body)], body) {
		t.Errorf("body = % X, want % X", raw[8:8+len(body)], body)
	}

	// CRC覆盖帧头+数据，不含帧尾
	wantCRC := CRC16Kermit(raw[:len(raw)-FooterSize])
	gotCRC := binary.LittleEndian.Uint16(raw[len(raw)-FooterSize:])
	if gotCRC != wantCRC {
		t.Errorf("crc16 = 0x%04X, want 0x%04X", gotCRC, wantCRC)
	}
}

// TestFrameRoundTrip 测试帧的序列化/解析往返
func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msgType uint16
		body    []byte
	}{
		{"旋转命令", MsgRotate, []byte{0x02, 0x84, 0x03}},
		{"角度查询（空数据）", MsgGetAngle, nil},
		{"编码器应答", MsgEncoderRead | ReplyFlag, []byte{0x00, 0x10, 0x27, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := NewFrame(tt.msgType, tt.body).ToBytes()

			parsed := &Frame{}
			if err := parsed.FromBytes(raw); err != nil {
				t.Fatalf("FromBytes() error = %v", err)
			}
			if parsed.MsgType != tt.msgType {
				t.Errorf("MsgType = 0x%04X, want 0x%04X", parsed.MsgType, tt.msgType)
			}
			if len(tt.body) == 0 && len(parsed.Body) != 0 {
				t.Errorf("Body = % X, want empty", parsed.Body)
			}
			if len(tt.body) > 0 && !bytes.Equal(parsed.Body, tt.body) {
				t.Errorf("Body = % X, want % X", parsed.Body, tt.body)
			}
		})
	}
}

// TestFrameFromBytesErrors 测试帧解析的各类失败
func TestFrameFromBytesErrors(t *testing.T) {
	good := NewFrame(MsgRotate, []byte{0x01, 0x00, 0x00}).ToBytes()

	// 帧过短
	f := &Frame{}
	if err := f.FromBytes(good[:5]); !errors.Is(err, errors.ErrFrameLength) {
		t.Errorf("short frame: err = %v, want ErrFrameLength", err)
	}

	// 同步字错误
	bad := append([]byte(nil), good...)
	bad[0] ^= 0xFF
	if err := f.FromBytes(bad); !errors.Is(err, errors.ErrFrameSync) {
		t.Errorf("bad sync: err = %v, want ErrFrameSync", err)
	}

	// 长度字段不匹配
	bad = append([]byte(nil), good...)
	bad[4]++
	if err := f.FromBytes(bad); !errors.Is(err, errors.ErrFrameLength) {
		t.Errorf("bad length: err = %v, want ErrFrameLength", err)
	}

	// CRC被破坏
	bad = append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF
	if err := f.FromBytes(bad); !errors.Is(err, errors.ErrCRCMismatch) {
		t.Errorf("bad crc: err = %v, want ErrCRCMismatch", err)
	}

	// 数据被破坏同样表现为CRC失败
	bad = append([]byte(nil), good...)
	bad[9] ^= 0x01
	if err := f.FromBytes(bad); !errors.Is(err, errors.ErrCRCMismatch) {
		t.Errorf("bad body: err = %v, want ErrCRCMismatch", err)
	}
}

// TestMessageSchemaSizes 测试各命令报文的线上长度
func TestMessageSchemaSizes(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{"旋转命令", RotateReqSchema.Size(), 3},
		{"旋转应答", RotateRespSchema.Size(), 1},
		{"角度查询", AngleReqSchema.Size(), 0},
		{"角度应答", AngleRespSchema.Size(), 3},
		{"舱门命令", DoorReqSchema.Size(), 2},
		{"编码器命令", EncoderReqSchema.Size(), 1},
		{"编码器应答", EncoderRespSchema.Size(), 5},
		{"继电器命令", RelayReqSchema.Size(), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.size != tt.want {
				t.Errorf("Size() = %d, want %d", tt.size, tt.want)
			}
		})
	}
}
