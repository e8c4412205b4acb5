package codec

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/wfunc/ate-station/internal/errors"
)

// TestSchemaSize 测试结构定义的长度计算
func TestSchemaSize(t *testing.T) {
	tests := []struct {
		name     string
		fields   []Field
		wantSize int
	}{
		{
			name:     "空报文",
			fields:   nil,
			wantSize: 0,
		},
		{
			name: "标量混合",
			fields: []Field{
				{Name: "op", Type: U8},
				{Name: "angle", Type: U16},
				{Name: "count", Type: I32},
				{Name: "ratio", Type: F64},
			},
			wantSize: 1 + 2 + 4 + 8,
		},
		{
			name: "定长数组",
			fields: []Field{
				{Name: "hdr", Type: U8},
				{Name: "payload", Type: U16, Count: 4},
			},
			wantSize: 1 + 2*4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema(tt.fields...)
			if err != nil {
				t.Fatalf("NewSchema() error = %v", err)
			}
			if s.Size() != tt.wantSize {
				t.Errorf("Size() = %d, want %d", s.Size(), tt.wantSize)
			}
		})
	}
}

// TestSchemaInvalid 测试非法结构定义
func TestSchemaInvalid(t *testing.T) {
	// 字段名重复
	_, err := NewSchema(
		Field{Name: "a", Type: U8},
		Field{Name: "a", Type: U16},
	)
	if !errors.Is(err, errors.ErrCodecFieldValue) {
		t.Errorf("duplicate name: err = %v, want ErrCodecFieldValue", err)
	}

	// 字段名为空
	_, err = NewSchema(Field{Name: "", Type: U8})
	if !errors.Is(err, errors.ErrCodecFieldValue) {
		t.Errorf("empty name: err = %v, want ErrCodecFieldValue", err)
	}
}

// TestMarshalLayout 测试序列化的小端字节布局
func TestMarshalLayout(t *testing.T) {
	s := MustSchema(
		Field{Name: "sync", Type: U32},
		Field{Name: "length", Type: U16},
		Field{Name: "op", Type: U8},
		Field{Name: "offset", Type: I16},
	)

	buf, err := s.Marshal(Message{
		"sync":   uint32(0x5AA55AA5),
		"length": uint16(0x0102),
		"op":     uint8(0x7F),
		"offset": int16(-2),
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := []byte{
		0xA5, 0x5A, 0xA5, 0x5A, // sync 小端序
		0x02, 0x01, // length
		0x7F,       // op
		0xFE, 0xFF, // offset = -2
	}
	if !bytes.Equal(buf, want) {
		t.Errorf("Marshal() = % X, want % X", buf, want)
	}
	if len(buf) != s.Size() {
		t.Errorf("len = %d, want Size() = %d", len(buf), s.Size())
	}
}

// TestRoundTrip 测试各类型的序列化/反序列化往返
func TestRoundTrip(t *testing.T) {
	s := MustSchema(
		Field{Name: "a", Type: U8},
		Field{Name: "b", Type: U16},
		Field{Name: "c", Type: U32},
		Field{Name: "d", Type: U64},
		Field{Name: "e", Type: I8},
		Field{Name: "f", Type: I16},
		Field{Name: "g", Type: I32},
		Field{Name: "h", Type: I64},
		Field{Name: "i", Type: F32},
		Field{Name: "j", Type: F64},
		Field{Name: "k", Type: U8, Count: 3},
		Field{Name: "l", Type: I32, Count: 2},
	)

	msg := Message{
		"a": uint8(0xFF),
		"b": uint16(0xABCD),
		"c": uint32(0xDEADBEEF),
		"d": uint64(0x0123456789ABCDEF),
		"e": int8(-128),
		"f": int16(-30000),
		"g": int32(-2000000000),
		"h": int64(-9000000000000000000),
		"i": float32(3.14),
		"j": float64(-2.718281828),
		"k": []uint8{1, 2, 3},
		"l": []int32{-1, 65536},
	}

	buf, err := s.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if len(buf) != s.Size() {
		t.Fatalf("len(Marshal()) = %d, want %d", len(buf), s.Size())
	}

	got, err := s.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(msg, got) {
		t.Errorf("round trip mismatch:\n got  %v\n want %v", got, msg)
	}
}

// TestZeroFieldMessage 测试零字段报文序列化为零字节
func TestZeroFieldMessage(t *testing.T) {
	s := MustSchema()
	if s.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", s.Size())
	}

	buf, err := s.Marshal(Message{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if len(buf) != 0 {
		t.Errorf("len(Marshal()) = %d, want 0", len(buf))
	}

	msg, err := s.Unmarshal(nil)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(msg) != 0 {
		t.Errorf("Unmarshal() = %v, want empty", msg)
	}
}

// TestStrictTypes 测试严格类型匹配，不做隐式扩宽
func TestStrictTypes(t *testing.T) {
	s := MustSchema(Field{Name: "v", Type: U16})

	// int不能代替uint16
	_, err := s.Marshal(Message{"v": 5})
	if !errors.Is(err, errors.ErrCodecFieldType) {
		t.Errorf("int value: err = %v, want ErrCodecFieldType", err)
	}

	// uint8不能隐式扩宽为uint16
	_, err = s.Marshal(Message{"v": uint8(5)})
	if !errors.Is(err, errors.ErrCodecFieldType) {
		t.Errorf("uint8 value: err = %v, want ErrCodecFieldType", err)
	}

	// 缺少字段
	_, err = s.Marshal(Message{})
	if !errors.Is(err, errors.ErrCodecFieldValue) {
		t.Errorf("missing field: err = %v, want ErrCodecFieldValue", err)
	}
}

// TestUnmarshalSizeMismatch 测试长度不匹配时拒绝解析
func TestUnmarshalSizeMismatch(t *testing.T) {
	s := MustSchema(Field{Name: "v", Type: U32})

	// 过短
	_, err := s.Unmarshal([]byte{1, 2})
	if !errors.Is(err, errors.ErrCodecSize) {
		t.Errorf("short input: err = %v, want ErrCodecSize", err)
	}

	// 过长也拒绝，不做部分解析
	_, err = s.Unmarshal([]byte{1, 2, 3, 4, 5})
	if !errors.Is(err, errors.ErrCodecSize) {
		t.Errorf("long input: err = %v, want ErrCodecSize", err)
	}
}

// TestArrayLengthMismatch 测试数组长度不匹配
func TestArrayLengthMismatch(t *testing.T) {
	s := MustSchema(Field{Name: "arr", Type: U8, Count: 4})

	_, err := s.Marshal(Message{"arr": []uint8{1, 2}})
	if !errors.Is(err, errors.ErrCodecFieldValue) {
		t.Errorf("short array: err = %v, want ErrCodecFieldValue", err)
	}
}
