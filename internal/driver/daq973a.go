package driver

import (
	"context"
	"strings"

	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/logger"
	"go.uber.org/zap"
)

// daq973aDriver Keysight DAQ973A数据采集仪驱动
// 通过多路复用通道测量电压/电流/电阻，测量结果交由引擎做限值校验
type daq973aDriver struct {
	bus    Bus
	opts   *Options
	logger *zap.Logger
}

// NewDAQ973A 创建DAQ973A驱动
func NewDAQ973A(bus Bus, opts *Options) Driver {
	return &daq973aDriver{
		bus:    bus,
		opts:   opts,
		logger: logger.GetModuleLogger("driver"),
	}
}

// Initialize 复位并清状态
func (d *daq973aDriver) Initialize(ctx context.Context, instrument string) error {
	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Write("*RST"); err != nil {
		return err
	}
	return s.Write("*CLS")
}

// Reset 无条件复位
func (d *daq973aDriver) Reset(ctx context.Context, instrument string) error {
	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Write("*RST")
}

// Execute 测量指定通道
// 必需参数：Instrument, Channel, Item；可选：Range, Sense
// Item取值：Volt / Curr / Res / Temp
func (d *daq973aDriver) Execute(ctx context.Context, params Params) (string, error) {
	instrument, err := params.Require("Instrument")
	if err != nil {
		return "", err
	}
	channel, err := params.Require("Channel")
	if err != nil {
		return "", err
	}
	item, err := params.Require("Item")
	if err != nil {
		return "", err
	}

	fn, err := measureFunction(item, params)
	if err != nil {
		return "", err
	}

	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return "", err
	}
	defer s.Close()

	// 量程在测量前单独配置；不配置时仪器自动量程
	if rng, ok := params.Get("Range"); ok && rng != "" {
		if err := s.Write("CONF:%s %s,(@%s)", fn, rng, channel); err != nil {
			return "", err
		}
	}

	resp, err := s.Query("MEAS:%s? (@%s)", fn, channel)
	if err != nil {
		return "", err
	}

	d.logger.Debug("DAQ973A measured",
		zap.String("instrument", instrument),
		zap.String("channel", channel),
		zap.String("item", item),
		zap.String("raw", resp))

	return strings.TrimSpace(resp), nil
}

// measureFunction 测量项到SCPI功能名的映射
// Sense=4W时电阻测量使用四线制
func measureFunction(item string, params Params) (string, error) {
	switch strings.ToLower(item) {
	case "volt":
		return "VOLT:DC", nil
	case "curr":
		return "CURR:DC", nil
	case "res":
		if sense, ok := params.Get("Sense"); ok && strings.EqualFold(sense, "4W") {
			return "FRES", nil
		}
		return "RES", nil
	case "temp":
		return "TEMP", nil
	default:
		return "", errors.Newf(errors.ErrInvalidParam, "未知的测量项: %s", item)
	}
}
