package fixture

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/ate-station/internal/codec"
	"github.com/wfunc/ate-station/internal/config"
	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/logger"
	"go.uber.org/zap"
)

// Port 治具链路端口接口（用于测试）
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Link 转台/继电器治具串口链路
// 命令执行流程：构帧 → 校验 → 发送 → 等待应答 → 解析
// 应答CRC校验失败时整条命令重发一次，再次失败即判定该命令失败
type Link struct {
	mu        sync.Mutex
	cfg       *config.FixtureConfig
	port      Port
	connected bool
	logger    *zap.Logger
}

// NewLink 创建治具链路
func NewLink(cfg *config.FixtureConfig) *Link {
	return &Link{
		cfg:    cfg,
		logger: logger.GetModuleLogger("fixture"),
	}
}

// Connect 打开治具串口
func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}

	stopBits := serial.Stop1
	if l.cfg.StopBits == 2 {
		stopBits = serial.Stop2
	}

	scfg := &serial.Config{
		Name:        l.cfg.Port,
		Baud:        l.cfg.BaudRate,
		StopBits:    stopBits,
		ReadTimeout: l.cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(scfg)
	if err != nil {
		l.logger.Error("Failed to open fixture port",
			zap.String("port", l.cfg.Port),
			zap.Error(err))
		return errors.Wrapf(err, errors.ErrConnectionOpen, "治具串口 %s", l.cfg.Port)
	}

	l.port = port
	l.connected = true

	l.logger.Info("Fixture link connected",
		zap.String("port", l.cfg.Port),
		zap.Int("baudrate", l.cfg.BaudRate))

	return nil
}

// ConnectPort 使用已有端口连接（用于测试和模拟治具）
func (l *Link) ConnectPort(port Port) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.port = port
	l.connected = true
}

// Disconnect 关闭治具串口
func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return nil
	}

	l.connected = false
	if l.port != nil {
		err := l.port.Close()
		l.port = nil
		if err != nil {
			return errors.Wrap(err, errors.ErrConnectionClosed)
		}
	}

	l.logger.Info("Fixture link disconnected")
	return nil
}

// IsConnected 检查连接状态
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Execute 执行一条治具命令并返回应答报文
// 命令与应答在同一把锁内完成，治具链路上不允许交叠命令
func (l *Link) Execute(msgType uint16, reqSchema *codec.Schema, req codec.Message,
	respSchema *codec.Schema, timeout time.Duration) (codec.Message, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected || l.port == nil {
		return nil, errors.New(errors.ErrConnectionClosed, "治具链路未连接")
	}

	body, err := reqSchema.Marshal(req)
	if err != nil {
		return nil, err
	}
	frame := NewFrame(msgType, body)
	raw := frame.ToBytes()

	// CRC校验失败允许整条命令重发一次
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			l.logger.Warn("Retrying fixture command after CRC mismatch",
				zap.Uint16("msg_type", msgType))
		}

		if err := l.send(raw); err != nil {
			return nil, err
		}

		reply, err := l.awaitReply(timeout)
		if err != nil {
			if errors.Is(err, errors.ErrCRCMismatch) {
				lastErr = err
				continue
			}
			return nil, err
		}

		if reply.MsgType != msgType|ReplyFlag {
			return nil, errors.Newf(errors.ErrFixtureStatus,
				"应答类型不匹配: 0x%04X != 0x%04X", reply.MsgType, msgType|ReplyFlag)
		}

		resp, err := respSchema.Unmarshal(reply.Body)
		if err != nil {
			return nil, err
		}

		l.logger.Debug("Fixture command completed",
			zap.Uint16("msg_type", msgType),
			zap.Int("body_len", len(body)))

		return resp, nil
	}

	return nil, lastErr
}

// Reopen 写失败置为断开后显式重新打开，不做自动重试
func (l *Link) Reopen() error {
	if err := l.Disconnect(); err != nil {
		return err
	}
	return l.Connect()
}

// send 发送整帧
// 写失败视为链路故障，置为断开状态，后续命令需显式Reopen
func (l *Link) send(raw []byte) error {
	n, err := l.port.Write(raw)
	if err != nil {
		l.markDown()
		return errors.Wrap(err, errors.ErrConnectionWrite)
	}
	if n != len(raw) {
		l.markDown()
		return errors.Newf(errors.ErrConnectionWrite, "写入不完整: %d/%d", n, len(raw))
	}
	return nil
}

// markDown 链路故障时关闭端口并置为断开，调用方需持有锁
func (l *Link) markDown() {
	l.connected = false
	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
	l.logger.Warn("Fixture link marked down after write failure")
}

// awaitReply 等待并解析一个完整应答帧
// 逐段读取累积缓冲，先定位同步字，再按长度字段收满整帧
func (l *Link) awaitReply(timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	frameBuf := make([]byte, 0, 256)
	buf := make([]byte, 256)

	for {
		if time.Now().After(deadline) {
			return nil, errors.Newf(errors.ErrConnectionTimeout, "等待治具应答超时 (%s)", timeout)
		}

		n, err := l.port.Read(buf)
		if err != nil && err.Error() != "EOF" {
			return nil, errors.Wrap(err, errors.ErrConnectionRead)
		}
		if n == 0 {
			continue
		}
		frameBuf = append(frameBuf, buf[:n]...)

		// 定位同步字
		idx := syncIndex(frameBuf)
		if idx < 0 {
			// 保留尾部可能的不完整同步字
			if len(frameBuf) > 3 {
				frameBuf = frameBuf[len(frameBuf)-3:]
			}
			continue
		}
		if idx > 0 {
			frameBuf = frameBuf[idx:]
		}

		// 等待长度字段
		if len(frameBuf) < 6 {
			continue
		}
		frameLen := int(binary.LittleEndian.Uint16(frameBuf[4:6]))
		if frameLen < TransportOverhead {
			return nil, errors.Newf(errors.ErrFrameLength, "应答长度字段非法: %d", frameLen)
		}
		if len(frameBuf) < frameLen {
			continue
		}

		frame := &Frame{}
		if err := frame.FromBytes(frameBuf[:frameLen]); err != nil {
			return nil, err
		}
		return frame, nil
	}
}

// syncIndex 在缓冲区中查找同步字位置
func syncIndex(buf []byte) int {
	for i := 0; i+4 <= len(buf); i++ {
		if binary.LittleEndian.Uint32(buf[i:]) == FrameSync {
			return i
		}
	}
	return -1
}
