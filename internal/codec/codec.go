package codec

import (
	"encoding/binary"
	"math"

	"github.com/wfunc/ate-station/internal/errors"
)

// FieldType 报文字段的基础类型
type FieldType int

// 基础类型定义
const (
	U8 FieldType = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F32
	F64
)

// Width 返回类型的字节宽度
func (t FieldType) Width() int {
	switch t {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	default:
		return 0
	}
}

// String 返回类型名称
func (t FieldType) String() string {
	switch t {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}

// Field 报文字段定义
type Field struct {
	Name  string    // 字段名，结构内唯一
	Type  FieldType // 基础类型
	Count int       // 定长数组长度，0或1表示标量
}

// elems 返回字段的元素个数
func (f Field) elems() int {
	if f.Count > 1 {
		return f.Count
	}
	return 1
}

// Schema 报文结构定义
// 构造后不可变；序列化长度等于各字段宽度之和，小端序，无对齐填充
// （与转台治具单片机的packed结构体布局保持一致）
type Schema struct {
	fields []Field
	size   int
}

// Message 字段名到字段值的映射
// 值必须是与字段类型精确对应的Go定宽类型（标量）或其切片（数组）
type Message map[string]interface{}

// NewSchema 创建报文结构定义
func NewSchema(fields ...Field) (*Schema, error) {
	seen := make(map[string]bool, len(fields))
	size := 0

	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New(errors.ErrCodecFieldValue, "字段名为空")
		}
		if seen[f.Name] {
			return nil, errors.Newf(errors.ErrCodecFieldValue, "字段名重复: %s", f.Name)
		}
		if f.Type.Width() == 0 {
			return nil, errors.Newf(errors.ErrCodecFieldType, "字段 %s 类型无效", f.Name)
		}
		if f.Count < 0 {
			return nil, errors.Newf(errors.ErrCodecFieldValue, "字段 %s 数组长度无效: %d", f.Name, f.Count)
		}
		seen[f.Name] = true
		size += f.Type.Width() * f.elems()
	}

	s := &Schema{
		fields: append([]Field(nil), fields...),
		size:   size,
	}
	return s, nil
}

// MustSchema 创建报文结构定义，定义非法时panic
// 用于包级静态报文定义
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Size 返回报文序列化后的字节长度
func (s *Schema) Size() int {
	return s.size
}

// Fields 返回字段定义副本
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Marshal 按结构定义序列化报文，输出长度恒等于Size()
func (s *Schema) Marshal(msg Message) ([]byte, error) {
	buf := make([]byte, 0, s.size)

	for _, f := range s.fields {
		val, ok := msg[f.Name]
		if !ok {
			return nil, errors.Newf(errors.ErrCodecFieldValue, "缺少字段: %s", f.Name)
		}

		var err error
		if f.Count > 1 {
			buf, err = appendArray(buf, f, val)
		} else {
			buf, err = appendScalar(buf, f, val)
		}
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// Unmarshal 按结构定义解析报文，输入长度必须恒等于Size()
func (s *Schema) Unmarshal(data []byte) (Message, error) {
	if len(data) != s.size {
		return nil, errors.Newf(errors.ErrCodecSize, "期望 %d 字节, 实际 %d 字节", s.size, len(data))
	}

	msg := make(Message, len(s.fields))
	off := 0

	for _, f := range s.fields {
		if f.Count > 1 {
			val, n := readArray(data[off:], f)
			msg[f.Name] = val
			off += n
		} else {
			val, n := readScalar(data[off:], f.Type)
			msg[f.Name] = val
			off += n
		}
	}

	return msg, nil
}

// appendScalar 追加一个标量字段，值类型必须精确匹配，不做隐式扩宽
func appendScalar(buf []byte, f Field, val interface{}) ([]byte, error) {
	switch f.Type {
	case U8:
		v, ok := val.(uint8)
		if !ok {
			return nil, typeError(f, val)
		}
		return append(buf, v), nil
	case U16:
		v, ok := val.(uint16)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint16(buf, v), nil
	case U32:
		v, ok := val.(uint32)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint32(buf, v), nil
	case U64:
		v, ok := val.(uint64)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint64(buf, v), nil
	case I8:
		v, ok := val.(int8)
		if !ok {
			return nil, typeError(f, val)
		}
		return append(buf, byte(v)), nil
	case I16:
		v, ok := val.(int16)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint16(buf, uint16(v)), nil
	case I32:
		v, ok := val.(int32)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint32(buf, uint32(v)), nil
	case I64:
		v, ok := val.(int64)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint64(buf, uint64(v)), nil
	case F32:
		v, ok := val.(float32)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v)), nil
	case F64:
		v, ok := val.(float64)
		if !ok {
			return nil, typeError(f, val)
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v)), nil
	default:
		return nil, typeError(f, val)
	}
}

// appendArray 追加一个定长数组字段，切片长度必须等于声明长度
func appendArray(buf []byte, f Field, val interface{}) ([]byte, error) {
	elem := Field{Name: f.Name, Type: f.Type}

	appendAll := func(n int, at func(i int) interface{}) ([]byte, error) {
		if n != f.Count {
			return nil, errors.Newf(errors.ErrCodecFieldValue,
				"字段 %s 数组长度不匹配: 期望 %d, 实际 %d", f.Name, f.Count, n)
		}
		var err error
		for i := 0; i < n; i++ {
			buf, err = appendScalar(buf, elem, at(i))
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	}

	switch vs := val.(type) {
	case []uint8:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []uint16:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []uint32:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []uint64:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []int8:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []int16:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []int32:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []int64:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []float32:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	case []float64:
		return appendAll(len(vs), func(i int) interface{} { return vs[i] })
	default:
		return nil, typeError(f, val)
	}
}

// readScalar 读取一个标量字段
func readScalar(data []byte, t FieldType) (interface{}, int) {
	switch t {
	case U8:
		return data[0], 1
	case U16:
		return binary.LittleEndian.Uint16(data), 2
	case U32:
		return binary.LittleEndian.Uint32(data), 4
	case U64:
		return binary.LittleEndian.Uint64(data), 8
	case I8:
		return int8(data[0]), 1
	case I16:
		return int16(binary.LittleEndian.Uint16(data)), 2
	case I32:
		return int32(binary.LittleEndian.Uint32(data)), 4
	case I64:
		return int64(binary.LittleEndian.Uint64(data)), 8
	case F32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4
	case F64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8
	default:
		return nil, 0
	}
}

// readArray 读取一个定长数组字段
func readArray(data []byte, f Field) (interface{}, int) {
	n := f.Count
	w := f.Type.Width()

	switch f.Type {
	case U8:
		out := make([]uint8, n)
		copy(out, data[:n])
		return out, n
	case U16:
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(data[i*w:])
		}
		return out, n * w
	case U32:
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[i*w:])
		}
		return out, n * w
	case U64:
		out := make([]uint64, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(data[i*w:])
		}
		return out, n * w
	case I8:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(data[i])
		}
		return out, n
	case I16:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*w:]))
		}
		return out, n * w
	case I32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[i*w:]))
		}
		return out, n * w
	case I64:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(data[i*w:]))
		}
		return out, n * w
	case F32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*w:]))
		}
		return out, n * w
	case F64:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*w:]))
		}
		return out, n * w
	default:
		return nil, 0
	}
}

// typeError 构造字段类型不匹配错误
func typeError(f Field, val interface{}) error {
	return errors.Newf(errors.ErrCodecFieldType, "字段 %s 期望 %s, 实际 %T", f.Name, f.Type, val)
}
