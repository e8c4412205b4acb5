package driver

import (
	"context"
	"fmt"

	"github.com/wfunc/ate-station/internal/logger"
	"go.uber.org/zap"
)

// psuCommands 电源驱动的SCPI命令集，各型号方言不同
type psuCommands struct {
	setVolt   string // 设置电压，带一个%.3f
	setCurr   string // 设置电流，带一个%.3f
	outputOn  string
	outputOff string
	measVolt  string
	measCurr  string
}

// verifyFunc 回读校验函数
type verifyFunc func(target, measured float64) bool

// psuDriver 可编程电源驱动
// 设置→等待稳定→回读→容差校验；回读超差返回描述性失败字符串而不是错误
type psuDriver struct {
	model  string
	bus    Bus
	opts   *Options
	cmds   psuCommands
	verify verifyFunc
	logger *zap.Logger
}

// newPSU 创建电源驱动
func newPSU(model string, bus Bus, opts *Options, cmds psuCommands, verify verifyFunc) *psuDriver {
	return &psuDriver{
		model:  model,
		bus:    bus,
		opts:   opts,
		cmds:   cmds,
		verify: verify,
		logger: logger.GetModuleLogger("driver"),
	}
}

// Initialize 清状态并关闭输出
func (d *psuDriver) Initialize(ctx context.Context, instrument string) error {
	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Write("*CLS"); err != nil {
		return err
	}
	return s.Write(d.cmds.outputOff)
}

// Reset 无条件复位，关输出
func (d *psuDriver) Reset(ctx context.Context, instrument string) error {
	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Write(d.cmds.outputOff); err != nil {
		return err
	}
	return s.Write("*RST")
}

// Execute 设置电压/电流并回读校验
// 必需参数：Instrument, SetVolt, SetCurr
func (d *psuDriver) Execute(ctx context.Context, params Params) (string, error) {
	instrument, err := params.Require("Instrument")
	if err != nil {
		return "", err
	}
	targetVolt, err := parseFloatParam(params, "SetVolt")
	if err != nil {
		return "", err
	}
	targetCurr, err := parseFloatParam(params, "SetCurr")
	if err != nil {
		return "", err
	}

	s, err := openSession(ctx, d.bus, instrument, d.opts.queryTimeout())
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := s.Write(d.cmds.setVolt, targetVolt); err != nil {
		return "", err
	}
	if err := s.Write(d.cmds.setCurr, targetCurr); err != nil {
		return "", err
	}
	if err := s.Write(d.cmds.outputOn); err != nil {
		return "", err
	}

	if err := settle(ctx, d.opts.settleInterval()); err != nil {
		return "", err
	}

	measVolt, err := s.QueryFloat(d.cmds.measVolt)
	if err != nil {
		return "", err
	}
	measCurr, err := s.QueryFloat(d.cmds.measCurr)
	if err != nil {
		return "", err
	}

	d.logger.Debug("PSU set and measured",
		zap.String("model", d.model),
		zap.String("instrument", instrument),
		zap.Float64("target_volt", targetVolt),
		zap.Float64("meas_volt", measVolt),
		zap.Float64("target_curr", targetCurr),
		zap.Float64("meas_curr", measCurr))

	if !d.verify(targetVolt, measVolt) {
		return fmt.Sprintf("set volt fail: target=%.3f measured=%.3f", targetVolt, measVolt), nil
	}
	if !d.verify(targetCurr, measCurr) {
		return fmt.Sprintf("set curr fail: target=%.3f measured=%.3f", targetCurr, measCurr), nil
	}

	return StatusOK, nil
}

// NewModel2303 Keithley MODEL2303电源，回读按±0.1绝对容差校验
func NewModel2303(bus Bus, opts *Options) Driver {
	tol := opts.toleranceAbsolute("MODEL2303", 0.1)
	return newPSU("MODEL2303", bus, opts, psuCommands{
		setVolt:   "VOLT %.3f",
		setCurr:   "CURR %.3f",
		outputOn:  "OUTP ON",
		outputOff: "OUTP OFF",
		measVolt:  "MEAS:VOLT?",
		measCurr:  "MEAS:CURR?",
	}, func(target, measured float64) bool {
		return withinAbsolute(target, measured, tol)
	})
}

// NewIT6723C ITECH IT6723C电源，回读按±1%相对容差校验
func NewIT6723C(bus Bus, opts *Options) Driver {
	tol := opts.toleranceRatio("IT6723C", 0.01)
	return newPSU("IT6723C", bus, opts, psuCommands{
		setVolt:   "VOLT %.3f",
		setCurr:   "CURR %.3f",
		outputOn:  "OUTP 1",
		outputOff: "OUTP 0",
		measVolt:  "MEAS:VOLT?",
		measCurr:  "MEAS:CURR?",
	}, func(target, measured float64) bool {
		return withinRatio(target, measured, tol)
	})
}

// NewPSW3072 固纬PSW30-72电源，回读按±1%相对容差校验
func NewPSW3072(bus Bus, opts *Options) Driver {
	tol := opts.toleranceRatio("PSW3072", 0.01)
	return newPSU("PSW3072", bus, opts, psuCommands{
		setVolt:   ":SOUR:VOLT %.3f",
		setCurr:   ":SOUR:CURR %.3f",
		outputOn:  ":OUTP:STAT ON",
		outputOff: ":OUTP:STAT OFF",
		measVolt:  ":MEAS:VOLT?",
		measCurr:  ":MEAS:CURR?",
	}, func(target, measured float64) bool {
		return withinRatio(target, measured, tol)
	})
}
