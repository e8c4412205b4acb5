package transport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wfunc/ate-station/internal/errors"
)

// BusKind 仪器总线类型
type BusKind int

// 总线类型定义
const (
	BusVISA    BusKind = iota // VISA资源（GPIB/USB等，需VISA运行时）
	BusSerial                 // 串口
	BusTCP                    // 原始TCP套接字
	BusADB                    // Android调试桥
	BusConsole                // 子进程控制台
)

// String 返回总线类型名称
func (k BusKind) String() string {
	switch k {
	case BusVISA:
		return "visa"
	case BusSerial:
		return "serial"
	case BusTCP:
		return "tcp"
	case BusADB:
		return "adb"
	case BusConsole:
		return "console"
	default:
		return "unknown"
	}
}

// InstrumentAddress 仪器地址
// 从静态配置解析，加载后不可变，由连接管理器的注册表持有
type InstrumentAddress struct {
	Kind BusKind

	// VISA
	Resource string

	// 串口
	Port     string
	Baud     int
	StopBits int

	// TCP
	Host    string
	TCPPort int

	// ADB
	DeviceID string

	// 控制台
	Command string
}

// String 返回地址的可读描述
func (a *InstrumentAddress) String() string {
	switch a.Kind {
	case BusVISA:
		return a.Resource
	case BusSerial:
		return fmt.Sprintf("%s/baud:%d", a.Port, a.Baud)
	case BusTCP:
		return fmt.Sprintf("%s:%d", a.Host, a.TCPPort)
	case BusADB:
		return "adb:" + a.DeviceID
	case BusConsole:
		return "console:" + a.Command
	default:
		return "unknown"
	}
}

// ParseAddress 解析配置中的仪器地址字符串
// 支持的格式：
//
//	COM3/baud:115200                       串口
//	ASRL3::INSTR/baud:115200/bits:2        VISA串口类资源（按本地串口打开）
//	TCPIP0::192.168.1.5::5025::SOCKET      VISA原始套接字资源（按TCP打开）
//	GPIB0::22::INSTR                       其他VISA资源
//	adb:0123456789ABCDEF                   ADB设备
//	console:/usr/local/bin/dut-shell       子进程控制台
func ParseAddress(spec string) (*InstrumentAddress, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New(errors.ErrAddressParse, "地址为空")
	}

	switch {
	case strings.HasPrefix(spec, "adb:"):
		id := strings.TrimPrefix(spec, "adb:")
		if id == "" {
			return nil, errors.New(errors.ErrAddressParse, "缺少ADB设备号")
		}
		return &InstrumentAddress{Kind: BusADB, DeviceID: id}, nil

	case spec == "console" || strings.HasPrefix(spec, "console:"):
		cmd := strings.TrimPrefix(spec, "console")
		cmd = strings.TrimPrefix(cmd, ":")
		return &InstrumentAddress{Kind: BusConsole, Command: cmd}, nil

	case strings.HasPrefix(spec, "COM") || strings.HasPrefix(spec, "/dev/"):
		return parseSerialSpec(spec)

	case strings.HasPrefix(spec, "ASRL"):
		return parseASRL(spec)

	case strings.Contains(spec, "::"):
		return parseVISA(spec)
	}

	return nil, errors.Newf(errors.ErrAddressParse, "无法识别的地址格式: %s", spec)
}

// parseSerialSpec 解析 COMx/baud:<rate> 或 /dev/ttyX/baud:<rate> 形式
func parseSerialSpec(spec string) (*InstrumentAddress, error) {
	addr := &InstrumentAddress{Kind: BusSerial, Baud: 9600, StopBits: 1}

	parts := strings.Split(spec, "/")
	// /dev/前缀本身包含斜杠，先把选项段剥离
	var opts []string
	for i, p := range parts {
		if strings.Contains(p, ":") {
			opts = parts[i:]
			addr.Port = strings.Join(parts[:i], "/")
			break
		}
	}
	if addr.Port == "" {
		addr.Port = spec
	}

	if err := applySerialOpts(addr, opts); err != nil {
		return nil, err
	}
	return addr, nil
}

// parseASRL 解析 ASRLn::INSTR/baud:<rate>/bits:<stopbits> 形式
// ASRL资源类按本地串口打开，资源号即串口号
func parseASRL(spec string) (*InstrumentAddress, error) {
	addr := &InstrumentAddress{Kind: BusSerial, Baud: 9600, StopBits: 1}

	head, optStr, _ := strings.Cut(spec, "/")
	numStr := strings.TrimPrefix(strings.SplitN(head, "::", 2)[0], "ASRL")
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return nil, errors.Newf(errors.ErrAddressParse, "ASRL资源号无效: %s", spec)
	}
	addr.Port = fmt.Sprintf("COM%d", n)

	var opts []string
	if optStr != "" {
		opts = strings.Split(optStr, "/")
	}
	if err := applySerialOpts(addr, opts); err != nil {
		return nil, err
	}
	return addr, nil
}

// applySerialOpts 应用 baud:<rate> / bits:<stopbits> 选项
func applySerialOpts(addr *InstrumentAddress, opts []string) error {
	for _, opt := range opts {
		if opt == "" {
			continue
		}
		key, val, ok := strings.Cut(opt, ":")
		if !ok {
			return errors.Newf(errors.ErrAddressParse, "串口选项无效: %s", opt)
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.Newf(errors.ErrAddressParse, "串口选项值无效: %s", opt)
		}
		switch key {
		case "baud":
			addr.Baud = n
		case "bits":
			addr.StopBits = n
		default:
			return errors.Newf(errors.ErrAddressParse, "未知的串口选项: %s", key)
		}
	}
	return nil
}

// parseVISA 解析VISA资源串
// TCPIPn::<host>::<port>::SOCKET 按原始TCP打开；其余资源类保留原始资源串
func parseVISA(spec string) (*InstrumentAddress, error) {
	parts := strings.Split(spec, "::")

	if strings.HasPrefix(parts[0], "TCPIP") && strings.EqualFold(parts[len(parts)-1], "SOCKET") {
		if len(parts) != 4 {
			return nil, errors.Newf(errors.ErrAddressParse, "TCPIP SOCKET资源格式错误: %s", spec)
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, errors.Newf(errors.ErrAddressParse, "TCP端口号无效: %s", parts[2])
		}
		return &InstrumentAddress{Kind: BusTCP, Host: parts[1], TCPPort: port}, nil
	}

	return &InstrumentAddress{Kind: BusVISA, Resource: spec}, nil
}
