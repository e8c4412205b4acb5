package driver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/logger"
	"github.com/wfunc/ate-station/internal/transport"
	"go.uber.org/zap"
)

// comportDriver 即配即用串口驱动
// CommandTest类测试项直接指定串口参数收发一条命令，不占用仪器注册表
type comportDriver struct {
	opts   *Options
	logger *zap.Logger

	// 传输打开函数，测试中可替换
	open func(addr *transport.InstrumentAddress) (transport.Transport, error)
}

// NewComport 创建串口命令驱动
func NewComport(bus Bus, opts *Options) Driver {
	return &comportDriver{
		opts:   opts,
		logger: logger.GetModuleLogger("driver"),
		open:   transport.Open,
	}
}

// Initialize 无状态驱动，无需初始化
func (d *comportDriver) Initialize(ctx context.Context, instrument string) error {
	return nil
}

// Reset 无状态驱动，无需复位
func (d *comportDriver) Reset(ctx context.Context, instrument string) error {
	return nil
}

// Execute 打开串口、发送命令并读取一行应答
// 必需参数：Port, Baud, Command
func (d *comportDriver) Execute(ctx context.Context, params Params) (string, error) {
	port, err := params.Require("Port")
	if err != nil {
		return "", err
	}
	baudRaw, err := params.Require("Baud")
	if err != nil {
		return "", err
	}
	command, err := params.Require("Command")
	if err != nil {
		return "", err
	}

	baud, err := strconv.Atoi(baudRaw)
	if err != nil {
		return "", errors.Newf(errors.ErrInvalidParam, "波特率无效: %s", baudRaw)
	}

	addr, err := transport.ParseAddress(fmt.Sprintf("%s/baud:%d", port, baud))
	if err != nil {
		return "", err
	}

	tr, err := d.open(addr)
	if err != nil {
		return "", err
	}
	defer tr.Close()

	resp, err := tr.Query(command, d.opts.queryTimeout())
	if err != nil {
		return "", err
	}

	d.logger.Debug("Comport command executed",
		zap.String("port", port),
		zap.Int("baud", baud),
		zap.String("command", command),
		zap.String("response", resp))

	return resp, nil
}
