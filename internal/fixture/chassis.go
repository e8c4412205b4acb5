package fixture

import (
	"sync"
	"time"

	"github.com/wfunc/ate-station/internal/codec"
	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/logger"
	"go.uber.org/zap"
)

// RotationDirection 旋转方向
type RotationDirection int

const (
	Clockwise RotationDirection = iota
	Counterclockwise
)

// String 返回方向名称
func (d RotationDirection) String() string {
	if d == Clockwise {
		return "CLOCKWISE"
	}
	return "COUNTERCLOCKWISE"
}

// ChassisController 转台控制器
// 每个工位只有一台转台，进程内通过GetChassis()访问单例
// 旋转状态建模为忙标志：外部旋转命令期间置位，完成或显式停止后清除
type ChassisController struct {
	mu       sync.Mutex
	link     *Link
	timeout  time.Duration
	logger   *zap.Logger
	rotating bool
	stopTmr  *time.Timer
}

var (
	chassisInst *ChassisController
	chassisOnce sync.Once
)

// InitChassis 初始化转台控制器单例
func InitChassis(link *Link, replyTimeout time.Duration) *ChassisController {
	chassisOnce.Do(func() {
		chassisInst = &ChassisController{
			link:    link,
			timeout: replyTimeout,
			logger:  logger.GetModuleLogger("chassis"),
		}
	})
	return chassisInst
}

// GetChassis 获取转台控制器单例
func GetChassis() *ChassisController {
	return chassisInst
}

// rotate 下发旋转命令并检查治具应答状态
func (c *ChassisController) rotate(op byte, angle uint16) error {
	resp, err := c.link.Execute(MsgRotate, RotateReqSchema, codec.Message{
		"op":    op,
		"angle": angle,
	}, RotateRespSchema, c.timeout)
	if err != nil {
		return err
	}

	status := resp["status"].(uint8)
	if status != StatusSuccess {
		return errors.Newf(errors.ErrFixtureStatus, "rotate status=%s", statusName(status))
	}
	return nil
}

// RotateClockwise 顺时针旋转指定时长
func (c *ChassisController) RotateClockwise(duration time.Duration) error {
	return c.rotateTimed(RotateRight, Clockwise, duration)
}

// RotateCounterclockwise 逆时针旋转指定时长
func (c *ChassisController) RotateCounterclockwise(duration time.Duration) error {
	return c.rotateTimed(RotateLeft, Counterclockwise, duration)
}

// rotateTimed 按时长旋转：下发持续旋转命令，到时后下发停止
func (c *ChassisController) rotateTimed(op byte, dir RotationDirection, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rotating {
		return errors.New(errors.ErrFixtureStatus, "转台正在旋转")
	}

	if err := c.rotate(op, AngleContinuous); err != nil {
		return err
	}

	c.rotating = true
	c.logger.Info("Chassis rotation started",
		zap.String("direction", dir.String()),
		zap.Duration("duration", duration))

	c.stopTmr = time.AfterFunc(duration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.rotating {
			return
		}
		if err := c.rotate(op, AngleStop); err != nil {
			c.logger.Error("Failed to stop chassis rotation", zap.Error(err))
		}
		c.rotating = false
		c.logger.Info("Chassis rotation completed")
	})

	return nil
}

// IsRotating 检查转台是否在旋转
func (c *ChassisController) IsRotating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotating
}

// StopRotation 显式停止旋转
func (c *ChassisController) StopRotation() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.rotating {
		return nil
	}
	if c.stopTmr != nil {
		c.stopTmr.Stop()
		c.stopTmr = nil
	}

	err := c.rotate(RotateRight, AngleStop)
	c.rotating = false
	if err != nil {
		return err
	}

	c.logger.Info("Chassis rotation stopped")
	return nil
}

// RotateToOrigin 旋转至光电开关原点
func (c *ChassisController) RotateToOrigin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rotating {
		return errors.New(errors.ErrFixtureStatus, "转台正在旋转")
	}
	return c.rotate(RotateToOpto, AngleStop)
}

// GetAngle 查询当前转台角度（度）
func (c *ChassisController) GetAngle() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.link.Execute(MsgGetAngle, AngleReqSchema, codec.Message{},
		AngleRespSchema, c.timeout)
	if err != nil {
		return 0, err
	}

	status := resp["status"].(uint8)
	if status != StatusSuccess {
		return 0, errors.Newf(errors.ErrFixtureStatus, "get angle status=%s", statusName(status))
	}

	// 治具以0.1度为单位上报
	return float64(resp["angle"].(uint16)) / 10.0, nil
}

// ActuateDoor 控制指定编号的跌落传感器舱门
func (c *ChassisController) ActuateDoor(door byte, action byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.link.Execute(MsgDoorControl, DoorReqSchema, codec.Message{
		"door":   door,
		"action": action,
	}, DoorRespSchema, c.timeout)
	if err != nil {
		return err
	}

	status := resp["status"].(uint8)
	if status != StatusSuccess {
		return errors.Newf(errors.ErrFixtureStatus, "door status=%s", statusName(status))
	}
	return nil
}

// ReadEncoder 读取编码器计数
func (c *ChassisController) ReadEncoder(side byte) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.link.Execute(MsgEncoderRead, EncoderReqSchema, codec.Message{
		"side": side,
	}, EncoderRespSchema, c.timeout)
	if err != nil {
		return 0, err
	}

	status := resp["status"].(uint8)
	if status != StatusSuccess {
		return 0, errors.Newf(errors.ErrFixtureStatus, "encoder status=%s", statusName(status))
	}
	return resp["count"].(int32), nil
}

// Reset 会话结束时的转台复位：停转并回原点
// 未初始化完成也必须可以安全调用
func (c *ChassisController) Reset() error {
	if c == nil || c.link == nil || !c.link.IsConnected() {
		return nil
	}

	if err := c.StopRotation(); err != nil {
		return err
	}
	return c.RotateToOrigin()
}
