package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/ate-station/internal/errors"
)

// fakeTransport 模拟传输通道
type fakeTransport struct {
	mu       sync.Mutex
	commands []string
	response string
	closed   bool
}

func (f *fakeTransport) Write(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeTransport) Query(cmd string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.response, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// newTestManager 创建使用模拟传输的管理器
func newTestManager(t *testing.T, instruments map[string]string) (*Manager, map[string]*fakeTransport) {
	t.Helper()

	m, err := NewManager(instruments)
	require.NoError(t, err)

	opened := make(map[string]*fakeTransport)
	var mu sync.Mutex
	m.open = func(addr *InstrumentAddress) (Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		tr := &fakeTransport{response: "OK"}
		opened[addr.String()] = tr
		return tr, nil
	}

	return m, opened
}

// TestManagerAcquireLazyOpen 测试首次acquire时惰性打开
func TestManagerAcquireLazyOpen(t *testing.T) {
	m, opened := newTestManager(t, map[string]string{
		"daq973a_1": "TCPIP0::192.168.1.10::5025::SOCKET",
	})

	// 创建后尚未打开任何连接
	assert.Empty(t, opened)

	h, err := m.Acquire(context.Background(), "daq973a_1")
	require.NoError(t, err)
	assert.Len(t, opened, 1)
	assert.Equal(t, "daq973a_1", h.ID())

	// 再次acquire复用已打开的传输
	m.Release(h)
	h2, err := m.Acquire(context.Background(), "daq973a_1")
	require.NoError(t, err)
	assert.Len(t, opened, 1)
	m.Release(h2)
}

// TestManagerUnknownInstrument 测试未配置的仪器
func TestManagerUnknownInstrument(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{})

	_, err := m.Acquire(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

// TestManagerSerializesAccess 测试同一仪器的并发acquire串行化
// 两个持有者的持有区间不得重叠
func TestManagerSerializesAccess(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{
		"psu_1": "COM5/baud:9600",
	})

	h1, err := m.Acquire(context.Background(), "psu_1")
	require.NoError(t, err)

	acquired := make(chan *Handle)
	go func() {
		h2, err := m.Acquire(context.Background(), "psu_1")
		if err != nil {
			close(acquired)
			return
		}
		acquired <- h2
	}()

	// 第二个acquire必须阻塞
	select {
	case <-acquired:
		t.Fatal("second Acquire returned while first handle still held")
	case <-time.After(100 * time.Millisecond):
	}

	// 释放后第二个acquire立即完成
	m.Release(h1)
	select {
	case h2 := <-acquired:
		require.NotNil(t, h2)
		m.Release(h2)
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not complete after Release")
	}
}

// TestManagerAcquireCancel 测试等待期间可被取消
func TestManagerAcquireCancel(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{
		"psu_1": "COM5/baud:9600",
	})

	h1, err := m.Acquire(context.Background(), "psu_1")
	require.NoError(t, err)
	defer m.Release(h1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "psu_1")
	assert.True(t, errors.Is(err, errors.ErrCanceled))
}

// TestManagerOpenFailureNotRetried 测试打开失败直接上报，不自动重试
func TestManagerOpenFailureNotRetried(t *testing.T) {
	m, err := NewManager(map[string]string{
		"sg_1": "TCPIP0::10.0.0.1::5025::SOCKET",
	})
	require.NoError(t, err)

	openCount := 0
	m.open = func(addr *InstrumentAddress) (Transport, error) {
		openCount++
		return nil, errors.New(errors.ErrConnectionOpen, "no route to host")
	}

	_, err = m.Acquire(context.Background(), "sg_1")
	assert.True(t, errors.Is(err, errors.ErrConnectionOpen))
	assert.Equal(t, 1, openCount)

	// 打开失败后信号量必须已释放，后续acquire不被卡死
	_, err = m.Acquire(context.Background(), "sg_1")
	assert.Error(t, err)
	assert.Equal(t, 2, openCount)
}

// TestManagerWriteQuery 测试句柄读写
func TestManagerWriteQuery(t *testing.T) {
	m, opened := newTestManager(t, map[string]string{
		"psu_1": "COM5/baud:9600",
	})

	h, err := m.Acquire(context.Background(), "psu_1")
	require.NoError(t, err)

	require.NoError(t, m.Write(h, "VOLT 5.0"))
	resp, err := m.Query(h, "MEAS:VOLT?", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	tr := opened["COM5/baud:9600"]
	assert.Equal(t, []string{"VOLT 5.0", "MEAS:VOLT?"}, tr.commands)

	m.Release(h)

	// 释放后的句柄不可再用
	err = m.Write(h, "VOLT 0")
	assert.True(t, errors.Is(err, errors.ErrConnectionClosed))
}

// TestManagerReset 测试复位关闭底层传输
func TestManagerReset(t *testing.T) {
	m, opened := newTestManager(t, map[string]string{
		"psu_1": "COM5/baud:9600",
	})

	h, err := m.Acquire(context.Background(), "psu_1")
	require.NoError(t, err)
	m.Release(h)

	require.NoError(t, m.Reset("psu_1"))
	assert.True(t, opened["COM5/baud:9600"].closed)

	// 复位后再次acquire重新打开
	h2, err := m.Acquire(context.Background(), "psu_1")
	require.NoError(t, err)
	m.Release(h2)
	assert.False(t, opened["COM5/baud:9600"].closed)
}

// TestManagerVISAUnsupported 测试GPIB类VISA资源打开失败
func TestManagerVISAUnsupported(t *testing.T) {
	m, err := NewManager(map[string]string{
		"dmm_1": "GPIB0::22::INSTR",
	})
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), "dmm_1")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedBus) || errors.Is(err, errors.ErrConnectionOpen))
}
