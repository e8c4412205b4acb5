package fixture

import (
	"sync"
	"time"

	"github.com/wfunc/ate-station/internal/codec"
	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/logger"
	"go.uber.org/zap"
)

// RelayState 继电器状态
type RelayState byte

// 继电器状态定义（与治具线上的取值一致）
const (
	SwitchOpen   RelayState = 0 // 断开
	SwitchClosed RelayState = 1 // 闭合
)

// StateUnknown 上电后未下发过任何命令时的未知状态
const StateUnknown RelayState = 0xFF

// String 返回状态名称
func (s RelayState) String() string {
	switch s {
	case SwitchOpen:
		return "SWITCH_OPEN"
	case SwitchClosed:
		return "SWITCH_CLOSED"
	default:
		return "UNKNOWN"
	}
}

// RelayController 继电器控制器
// 每个工位只有一组继电器，进程内通过GetRelay()访问单例
// 状态机：UNKNOWN → SWITCH_OPEN|SWITCH_CLOSED（任一显式命令）；Reset()恒驱动到SWITCH_CLOSED
type RelayController struct {
	mu      sync.Mutex
	link    *Link
	timeout time.Duration
	logger  *zap.Logger
	state   RelayState
}

var (
	relayInst *RelayController
	relayOnce sync.Once
)

// InitRelay 初始化继电器控制器单例
func InitRelay(link *Link, replyTimeout time.Duration) *RelayController {
	relayOnce.Do(func() {
		relayInst = &RelayController{
			link:    link,
			timeout: replyTimeout,
			logger:  logger.GetModuleLogger("relay"),
			state:   StateUnknown,
		}
	})
	return relayInst
}

// GetRelay 获取继电器控制器单例
func GetRelay() *RelayController {
	return relayInst
}

// SetRelayState 设置指定通道的继电器状态
func (r *RelayController) SetRelayState(state RelayState, channel byte) error {
	if state != SwitchOpen && state != SwitchClosed {
		return errors.Newf(errors.ErrInvalidParam, "无效的继电器状态: 0x%02X", byte(state))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	resp, err := r.link.Execute(MsgRelaySet, RelayReqSchema, codec.Message{
		"channel": channel,
		"state":   byte(state),
	}, RelayRespSchema, r.timeout)
	if err != nil {
		return err
	}

	status := resp["status"].(uint8)
	if status != StatusSuccess {
		return errors.Newf(errors.ErrFixtureStatus, "relay status=%s", statusName(status))
	}

	r.state = state
	r.logger.Info("Relay state changed",
		zap.Uint8("channel", channel),
		zap.String("state", state.String()))

	return nil
}

// SwitchOn 闭合指定通道
func (r *RelayController) SwitchOn(channel byte) error {
	return r.SetRelayState(SwitchClosed, channel)
}

// SwitchOff 断开指定通道
func (r *RelayController) SwitchOff(channel byte) error {
	return r.SetRelayState(SwitchOpen, channel)
}

// GetCurrentState 获取最近一次命令驱动到的状态
func (r *RelayController) GetCurrentState() RelayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset 会话结束时的继电器复位，恒驱动到闭合状态
// 未初始化完成也必须可以安全调用
func (r *RelayController) Reset() error {
	if r == nil || r.link == nil || !r.link.IsConnected() {
		return nil
	}
	return r.SetRelayState(SwitchClosed, 0)
}
