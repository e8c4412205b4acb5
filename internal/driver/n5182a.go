package driver

import (
	"context"
	"strconv"
	"strings"

	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/logger"
	"go.uber.org/zap"
)

// n5182aDriver Keysight N5182A矢量信号源驱动
// 支持连续波（CW）与任意波形（ARB）两种工作模式，由Mode参数选择
type n5182aDriver struct {
	bus    Bus
	opts   *Options
	logger *zap.Logger
}

// NewN5182A 创建N5182A驱动
func NewN5182A(bus Bus, opts *Options) Driver {
	return &n5182aDriver{
		bus:    bus,
		opts:   opts,
		logger: logger.GetModuleLogger("driver"),
	}
}

// Initialize 复位并关闭射频输出
func (d *n5182aDriver) Initialize(ctx context.Context, instrument string) error {
	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Write("*RST"); err != nil {
		return err
	}
	return s.Write(":OUTP:STAT OFF")
}

// Reset 无条件复位，关闭射频与调制输出
func (d *n5182aDriver) Reset(ctx context.Context, instrument string) error {
	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Write(":OUTP:STAT OFF"); err != nil {
		return err
	}
	if err := s.Write(":OUTP:MOD:STAT OFF"); err != nil {
		return err
	}
	return s.Write("*RST")
}

// Execute 配置并打开射频输出
// 必需参数：Instrument, Freq, Power；可选：Mode（CW|ARB，默认CW），ARB模式必需Waveform
func (d *n5182aDriver) Execute(ctx context.Context, params Params) (string, error) {
	instrument, err := params.Require("Instrument")
	if err != nil {
		return "", err
	}
	freqRaw, err := params.Require("Freq")
	if err != nil {
		return "", err
	}
	power, err := parseFloatParam(params, "Power")
	if err != nil {
		return "", err
	}

	freq, err := ExpandFrequency(freqRaw)
	if err != nil {
		return "", err
	}

	mode, _ := params.Get("Mode")
	if mode == "" {
		mode = "CW"
	}

	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := s.Write(":FREQ %s", freq); err != nil {
		return "", err
	}
	if err := s.Write(":POW %.2f dBm", power); err != nil {
		return "", err
	}

	switch strings.ToUpper(mode) {
	case "CW":
		if err := s.Write(":OUTP:MOD:STAT OFF"); err != nil {
			return "", err
		}
	case "ARB":
		waveform, err := params.Require("Waveform")
		if err != nil {
			return "", err
		}
		if err := s.Write(":RAD:ARB:WAV \"%s\"", waveform); err != nil {
			return "", err
		}
		if err := s.Write(":RAD:ARB:STAT ON"); err != nil {
			return "", err
		}
		if err := s.Write(":OUTP:MOD:STAT ON"); err != nil {
			return "", err
		}
	default:
		return "", errors.Newf(errors.ErrInvalidParam, "未知的工作模式: %s", mode)
	}

	if err := s.Write(":OUTP:STAT ON"); err != nil {
		return "", err
	}

	d.logger.Debug("N5182A output enabled",
		zap.String("instrument", instrument),
		zap.String("freq", freq),
		zap.Float64("power_dbm", power),
		zap.String("mode", mode))

	return StatusOK, nil
}

// ExpandFrequency 将紧凑频率写法展开为SCPI长格式
// "100K" → "100 kHz"，"50M" → "50 MHz"，"1G" → "1 GHz"，纯数字按Hz处理
func ExpandFrequency(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New(errors.ErrInvalidParam, "频率为空")
	}

	unit := "Hz"
	num := raw
	switch raw[len(raw)-1] {
	case 'K', 'k':
		unit = "kHz"
		num = raw[:len(raw)-1]
	case 'M', 'm':
		unit = "MHz"
		num = raw[:len(raw)-1]
	case 'G', 'g':
		unit = "GHz"
		num = raw[:len(raw)-1]
	}

	if _, err := strconv.ParseFloat(num, 64); err != nil {
		return "", errors.Newf(errors.ErrInvalidParam, "频率格式无效: %s", raw)
	}

	return num + " " + unit, nil
}
