package driver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/transport"
)

// session 一次驱动操作期间持有的仪器会话
// 获取到释放之间独占该仪器
type session struct {
	bus     Bus
	handle  *transport.Handle
	timeout time.Duration
}

// openSession 按仪器编号获取会话
func openSession(ctx context.Context, bus Bus, instrument string, timeout time.Duration) (*session, error) {
	h, err := bus.Acquire(ctx, instrument)
	if err != nil {
		return nil, err
	}
	return &session{bus: bus, handle: h, timeout: timeout}, nil
}

// Close 释放仪器会话
func (s *session) Close() {
	s.bus.Release(s.handle)
}

// Write 写入一条SCPI命令
func (s *session) Write(format string, args ...interface{}) error {
	return s.bus.Write(s.handle, fmt.Sprintf(format, args...))
}

// Query 查询一条SCPI命令
func (s *session) Query(format string, args ...interface{}) (string, error) {
	return s.bus.Query(s.handle, fmt.Sprintf(format, args...), s.timeout)
}

// QueryFloat 查询并解析为浮点数
func (s *session) QueryFloat(format string, args ...interface{}) (float64, error) {
	resp, err := s.Query(format, args...)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrValueCoercion, "应答: %q", resp)
	}
	return v, nil
}

// parseFloatParam 解析浮点参数
func parseFloatParam(params Params, key string) (float64, error) {
	raw, err := params.Require(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrInvalidParam, "参数 %s=%q", key, raw)
	}
	return v, nil
}

// withinRatio 检查测量值与目标值的相对偏差
// 目标为0时退化为绝对比较，避免除零
func withinRatio(target, measured, ratio float64) bool {
	if target == 0 {
		return math.Abs(measured) <= ratio
	}
	return math.Abs(measured-target)/math.Abs(target) <= ratio
}

// withinAbsolute 检查测量值与目标值的绝对偏差
func withinAbsolute(target, measured, tolerance float64) bool {
	return math.Abs(measured-target) <= tolerance
}

// settle 等待仪器稳定，会话中止时提前返回
func settle(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCanceled)
	}
}
