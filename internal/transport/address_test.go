package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/ate-station/internal/errors"
)

// TestParseAddress 测试各类地址字符串的解析
func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want InstrumentAddress
	}{
		{
			name: "COM串口带波特率",
			spec: "COM3/baud:115200",
			want: InstrumentAddress{Kind: BusSerial, Port: "COM3", Baud: 115200, StopBits: 1},
		},
		{
			name: "设备文件串口",
			spec: "/dev/ttyUSB0/baud:9600",
			want: InstrumentAddress{Kind: BusSerial, Port: "/dev/ttyUSB0", Baud: 9600, StopBits: 1},
		},
		{
			name: "COM串口默认波特率",
			spec: "COM1",
			want: InstrumentAddress{Kind: BusSerial, Port: "COM1", Baud: 9600, StopBits: 1},
		},
		{
			name: "ASRL资源带停止位",
			spec: "ASRL3::INSTR/baud:115200/bits:2",
			want: InstrumentAddress{Kind: BusSerial, Port: "COM3", Baud: 115200, StopBits: 2},
		},
		{
			name: "TCPIP套接字资源",
			spec: "TCPIP0::192.168.1.50::5025::SOCKET",
			want: InstrumentAddress{Kind: BusTCP, Host: "192.168.1.50", TCPPort: 5025},
		},
		{
			name: "GPIB资源保留原始资源串",
			spec: "GPIB0::22::INSTR",
			want: InstrumentAddress{Kind: BusVISA, Resource: "GPIB0::22::INSTR"},
		},
		{
			name: "USB资源保留原始资源串",
			spec: "USB0::0x2A8D::0x5101::MY12345678::INSTR",
			want: InstrumentAddress{Kind: BusVISA, Resource: "USB0::0x2A8D::0x5101::MY12345678::INSTR"},
		},
		{
			name: "ADB设备",
			spec: "adb:0123456789ABCDEF",
			want: InstrumentAddress{Kind: BusADB, DeviceID: "0123456789ABCDEF"},
		},
		{
			name: "控制台",
			spec: "console:/usr/local/bin/dut-shell",
			want: InstrumentAddress{Kind: BusConsole, Command: "/usr/local/bin/dut-shell"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

// TestParseAddressErrors 测试非法地址
func TestParseAddressErrors(t *testing.T) {
	specs := []string{
		"",
		"adb:",
		"ASRLx::INSTR",
		"TCPIP0::host::notaport::SOCKET",
		"COM3/baud:fast",
		"COM3/parity:odd",
		"???",
	}

	for _, spec := range specs {
		_, err := ParseAddress(spec)
		assert.True(t, errors.Is(err, errors.ErrAddressParse), "spec %q: err = %v", spec, err)
	}
}
