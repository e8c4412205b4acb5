package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/ate-station/internal/errors"
)

// 命令终止符，打开连接时设置一次，不随命令变化
const termChar = '\n'

// pollInterval 串口读轮询间隔由底层ReadTimeout决定
const serialReadTimeout = 50 * time.Millisecond

// Transport 仪器传输通道
// 所有实现都以行为单位通信：写入自动补终止符，读取到终止符为止
type Transport interface {
	// Write 写入一条命令，不等待应答
	Write(cmd string) error
	// Query 写入一条命令并等待一行应答，超时返回ErrConnectionTimeout
	Query(cmd string, timeout time.Duration) (string, error)
	// Close 关闭通道
	Close() error
}

// Open 按仪器地址直接打开传输通道，不经过连接管理器
// 用于临时性的总线访问（如CommandTest的即配即用串口）
func Open(addr *InstrumentAddress) (Transport, error) {
	return openTransport(addr)
}

// openTransport 按仪器地址打开对应的传输通道
func openTransport(addr *InstrumentAddress) (Transport, error) {
	switch addr.Kind {
	case BusSerial:
		return openSerial(addr)
	case BusTCP:
		return openTCP(addr)
	case BusADB:
		return &adbTransport{deviceID: addr.DeviceID}, nil
	case BusConsole:
		return openConsole(addr)
	case BusVISA:
		// GPIB/USB等VISA资源类需要VISA运行时，当前工位不部署
		return nil, errors.Newf(errors.ErrUnsupportedBus,
			"VISA资源 %s 需要VISA运行时支持", addr.Resource)
	default:
		return nil, errors.Newf(errors.ErrUnsupportedBus, "未知总线类型: %d", addr.Kind)
	}
}

// serialTransport 串口通道
type serialTransport struct {
	port *serial.Port
}

// openSerial 打开串口，波特率/停止位在此一次性配置
func openSerial(addr *InstrumentAddress) (Transport, error) {
	stopBits := serial.Stop1
	if addr.StopBits == 2 {
		stopBits = serial.Stop2
	}

	cfg := &serial.Config{
		Name:        addr.Port,
		Baud:        addr.Baud,
		StopBits:    stopBits,
		ReadTimeout: serialReadTimeout,
	}

	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConnectionOpen, "串口 %s", addr.Port)
	}
	return &serialTransport{port: port}, nil
}

func (t *serialTransport) Write(cmd string) error {
	if _, err := t.port.Write([]byte(cmd + string(termChar))); err != nil {
		return errors.Wrap(err, errors.ErrConnectionWrite)
	}
	return nil
}

func (t *serialTransport) Query(cmd string, timeout time.Duration) (string, error) {
	if err := t.Write(cmd); err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	var line []byte
	buf := make([]byte, 256)

	for {
		if time.Now().After(deadline) {
			return "", errors.Newf(errors.ErrConnectionTimeout, "查询超时 (%s): %s", timeout, cmd)
		}
		n, err := t.port.Read(buf)
		if err != nil && err.Error() != "EOF" {
			return "", errors.Wrap(err, errors.ErrConnectionRead)
		}
		for i := 0; i < n; i++ {
			if buf[i] == termChar {
				return strings.TrimRight(string(line), "\r"), nil
			}
			line = append(line, buf[i])
		}
	}
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}

// tcpTransport 原始TCP套接字通道
type tcpTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

// openTCP 建立TCP连接
func openTCP(addr *InstrumentAddress) (Transport, error) {
	target := fmt.Sprintf("%s:%d", addr.Host, addr.TCPPort)
	conn, err := net.DialTimeout("tcp", target, 5*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConnectionOpen, "TCP %s", target)
	}
	return &tcpTransport{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (t *tcpTransport) Write(cmd string) error {
	if _, err := t.conn.Write([]byte(cmd + string(termChar))); err != nil {
		return errors.Wrap(err, errors.ErrConnectionWrite)
	}
	return nil
}

func (t *tcpTransport) Query(cmd string, timeout time.Duration) (string, error) {
	if err := t.Write(cmd); err != nil {
		return "", err
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", errors.Wrap(err, errors.ErrConnectionRead)
	}
	line, err := t.reader.ReadString(termChar)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", errors.Newf(errors.ErrConnectionTimeout, "查询超时 (%s): %s", timeout, cmd)
		}
		return "", errors.Wrap(err, errors.ErrConnectionRead)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// adbTransport ADB通道
// 每条命令通过 adb shell 独立执行，不维护长连接
type adbTransport struct {
	deviceID string
}

func (t *adbTransport) Write(cmd string) error {
	_, err := t.run(cmd, 10*time.Second)
	return err
}

func (t *adbTransport) Query(cmd string, timeout time.Duration) (string, error) {
	return t.run(cmd, timeout)
}

func (t *adbTransport) run(cmd string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "adb", "-s", t.deviceID, "shell", cmd).Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.Newf(errors.ErrConnectionTimeout, "adb命令超时 (%s): %s", timeout, cmd)
	}
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrConnectionRead, "adb shell %s", cmd)
	}
	return strings.TrimSpace(string(out)), nil
}

func (t *adbTransport) Close() error {
	return nil
}

// consoleTransport 子进程控制台通道
// 子进程常驻，命令经stdin写入，应答从stdout按行读取
type consoleTransport struct {
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	lineCh chan string
	errCh  chan error
}

// openConsole 启动控制台子进程
func openConsole(addr *InstrumentAddress) (Transport, error) {
	if addr.Command == "" {
		return nil, errors.New(errors.ErrConnectionOpen, "控制台命令为空")
	}

	parts := strings.Fields(addr.Command)
	cmd := exec.Command(parts[0], parts[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConnectionOpen)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConnectionOpen)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConnectionOpen, "控制台 %s", addr.Command)
	}

	t := &consoleTransport{
		cmd:    cmd,
		stdin:  bufio.NewWriter(stdin),
		lineCh: make(chan string, 16),
		errCh:  make(chan error, 1),
	}

	// 后台按行读取stdout，Query在声明的超时点挂起等待
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			t.lineCh <- scanner.Text()
		}
		t.errCh <- errors.New(errors.ErrConnectionClosed, "控制台进程已退出")
	}()

	return t, nil
}

func (t *consoleTransport) Write(cmd string) error {
	if _, err := t.stdin.WriteString(cmd + string(termChar)); err != nil {
		return errors.Wrap(err, errors.ErrConnectionWrite)
	}
	if err := t.stdin.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrConnectionWrite)
	}
	return nil
}

func (t *consoleTransport) Query(cmd string, timeout time.Duration) (string, error) {
	if err := t.Write(cmd); err != nil {
		return "", err
	}

	select {
	case line := <-t.lineCh:
		return line, nil
	case err := <-t.errCh:
		return "", err
	case <-time.After(timeout):
		return "", errors.Newf(errors.ErrConnectionTimeout, "控制台查询超时 (%s): %s", timeout, cmd)
	}
}

func (t *consoleTransport) Close() error {
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}
