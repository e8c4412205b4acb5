package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/transport"
)

// fakeSerial 模拟即配即用串口
type fakeSerial struct {
	lastCmd  string
	response string
	closed   bool
}

func (f *fakeSerial) Write(cmd string) error { f.lastCmd = cmd; return nil }

func (f *fakeSerial) Query(cmd string, timeout time.Duration) (string, error) {
	f.lastCmd = cmd
	return f.response, nil
}

func (f *fakeSerial) Close() error { f.closed = true; return nil }

// TestComportExecute 测试串口命令收发
func TestComportExecute(t *testing.T) {
	fs := &fakeSerial{response: "DUT READY"}

	d := NewComport(nil, testOptions()).(*comportDriver)
	var opened *transport.InstrumentAddress
	d.open = func(addr *transport.InstrumentAddress) (transport.Transport, error) {
		opened = addr
		return fs, nil
	}

	resp, err := d.Execute(context.Background(), Params{
		"Port":    "COM7",
		"Baud":    "115200",
		"Command": "AT+STATUS?",
	})
	require.NoError(t, err)
	assert.Equal(t, "DUT READY", resp)
	assert.Equal(t, "AT+STATUS?", fs.lastCmd)

	// 串口按参数打开，用完即关
	require.NotNil(t, opened)
	assert.Equal(t, transport.BusSerial, opened.Kind)
	assert.Equal(t, "COM7", opened.Port)
	assert.Equal(t, 115200, opened.Baud)
	assert.True(t, fs.closed)
}

// TestComportBadParams 测试参数校验
func TestComportBadParams(t *testing.T) {
	d := NewComport(nil, testOptions())

	_, err := d.Execute(context.Background(), Params{
		"Port": "COM7",
		"Baud": "115200",
	})
	assert.True(t, errors.Is(err, errors.ErrMissingParameter))

	_, err = d.Execute(context.Background(), Params{
		"Port":    "COM7",
		"Baud":    "fast",
		"Command": "AT",
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))
}
