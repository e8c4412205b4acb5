package fixture

import "github.com/wfunc/ate-station/internal/codec"

// 报文类型定义（上位机→治具）
const (
	MsgRotate      uint16 = 0x0001 // 转台旋转
	MsgGetAngle    uint16 = 0x0002 // 查询转台角度
	MsgDoorControl uint16 = 0x0003 // 跌落传感器舱门动作
	MsgEncoderRead uint16 = 0x0004 // 读取编码器计数
	MsgRelaySet    uint16 = 0x0005 // 继电器通道设置

	// 治具应答的报文类型为命令类型置最高位
	ReplyFlag uint16 = 0x8000
)

// 转台旋转操作
const (
	RotateToOpto byte = 0 // 旋转至光电开关原点
	RotateLeft   byte = 1 // 左转
	RotateRight  byte = 2 // 右转
)

// 旋转角度特殊值
const (
	AngleStop       uint16 = 0x0000 // 停止旋转
	AngleContinuous uint16 = 0xFFFF // 持续旋转直到停止命令
)

// 舱门动作
const (
	DoorClose byte = 0 // 关闭
	DoorOpen  byte = 1 // 打开
)

// 编码器
const (
	EncoderLeft  byte = 0 // 左编码器
	EncoderRight byte = 1 // 右编码器
)

// 治具应答状态码
const (
	StatusSuccess        byte = 0 // 成功
	StatusGeneralFailure byte = 1 // 一般失败
	StatusTimeoutExpired byte = 2 // 治具侧超时
)

// 命令报文结构定义
var (
	// RotateReqSchema 旋转命令：操作 + 角度（0.1度单位）
	RotateReqSchema = codec.MustSchema(
		codec.Field{Name: "op", Type: codec.U8},
		codec.Field{Name: "angle", Type: codec.U16},
	)

	// RotateRespSchema 旋转应答
	RotateRespSchema = codec.MustSchema(
		codec.Field{Name: "status", Type: codec.U8},
	)

	// AngleReqSchema 角度查询命令，无数据
	AngleReqSchema = codec.MustSchema()

	// AngleRespSchema 角度查询应答：角度为0.1度单位
	AngleRespSchema = codec.MustSchema(
		codec.Field{Name: "status", Type: codec.U8},
		codec.Field{Name: "angle", Type: codec.U16},
	)

	// DoorReqSchema 舱门动作命令：舱门编号 + 动作
	DoorReqSchema = codec.MustSchema(
		codec.Field{Name: "door", Type: codec.U8},
		codec.Field{Name: "action", Type: codec.U8},
	)

	// DoorRespSchema 舱门动作应答
	DoorRespSchema = codec.MustSchema(
		codec.Field{Name: "status", Type: codec.U8},
	)

	// EncoderReqSchema 编码器读取命令：左/右
	EncoderReqSchema = codec.MustSchema(
		codec.Field{Name: "side", Type: codec.U8},
	)

	// EncoderRespSchema 编码器读取应答
	EncoderRespSchema = codec.MustSchema(
		codec.Field{Name: "status", Type: codec.U8},
		codec.Field{Name: "count", Type: codec.I32},
	)

	// RelayReqSchema 继电器设置命令：通道 + 状态
	RelayReqSchema = codec.MustSchema(
		codec.Field{Name: "channel", Type: codec.U8},
		codec.Field{Name: "state", Type: codec.U8},
	)

	// RelayRespSchema 继电器设置应答
	RelayRespSchema = codec.MustSchema(
		codec.Field{Name: "status", Type: codec.U8},
	)
)

// statusName 状态码描述
func statusName(status byte) string {
	switch status {
	case StatusSuccess:
		return "SUCCESS"
	case StatusGeneralFailure:
		return "GENERAL_FAILURE"
	case StatusTimeoutExpired:
		return "TIMEOUT_EXPIRED"
	default:
		return "UNKNOWN"
	}
}
