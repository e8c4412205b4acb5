package transport

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/logger"
	"go.uber.org/zap"
)

// Handle 仪器连接句柄
// 持有期间独占对应仪器的写权，必须通过Release归还
type Handle struct {
	id   string
	conn *instrumentConn
}

// ID 返回句柄对应的仪器编号
func (h *Handle) ID() string {
	return h.id
}

// instrumentConn 单台仪器的连接记录
type instrumentConn struct {
	addr *InstrumentAddress
	sem  chan struct{} // 容量1，单写者
	mu   sync.Mutex    // 保护transport与refs
	tr   Transport
	refs int
}

// Manager 连接管理器
// 持有仪器编号到物理地址的注册表，首次acquire时惰性打开底层传输
// 同一仪器编号的并发acquire串行化：物理总线是单一共享资源
type Manager struct {
	mu     sync.Mutex
	conns  map[string]*instrumentConn
	logger *zap.Logger

	// 传输打开函数，测试中可替换
	open func(addr *InstrumentAddress) (Transport, error)
}

// NewManager 创建连接管理器
// instruments为仪器编号到地址字符串的静态映射，全部地址在此一次性解析
func NewManager(instruments map[string]string) (*Manager, error) {
	m := &Manager{
		conns:  make(map[string]*instrumentConn, len(instruments)),
		logger: logger.GetModuleLogger("transport"),
		open:   openTransport,
	}

	for id, spec := range instruments {
		addr, err := ParseAddress(spec)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrAddressParse, "仪器 %s", id)
		}
		m.conns[id] = &instrumentConn{
			addr: addr,
			sem:  make(chan struct{}, 1),
		}
	}

	return m, nil
}

// Acquire 获取仪器连接句柄
// 同一仪器已被持有时阻塞，直到持有者Release或ctx取消
// 首次获取时惰性打开底层传输；打开失败不自动重试，由调用方决定重试策略
func (m *Manager) Acquire(ctx context.Context, id string) (*Handle, error) {
	m.mu.Lock()
	conn, ok := m.conns[id]
	m.mu.Unlock()
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "未配置的仪器: %s", id)
	}

	select {
	case conn.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrCanceled)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.tr == nil {
		tr, err := m.open(conn.addr)
		if err != nil {
			<-conn.sem
			m.logger.Error("Failed to open instrument",
				zap.String("instrument", id),
				zap.String("address", conn.addr.String()),
				zap.Error(err))
			return nil, errors.Wrapf(err, errors.ErrConnectionOpen, "仪器 %s", id)
		}
		conn.tr = tr
		m.logger.Info("Instrument opened",
			zap.String("instrument", id),
			zap.String("bus", conn.addr.Kind.String()),
			zap.String("address", conn.addr.String()))
	}
	conn.refs++

	return &Handle{id: id, conn: conn}, nil
}

// Release 归还仪器连接句柄
// 底层传输保持打开以供后续acquire复用，显式Reset才关闭
func (m *Manager) Release(h *Handle) {
	if h == nil || h.conn == nil {
		return
	}

	h.conn.mu.Lock()
	if h.conn.refs > 0 {
		h.conn.refs--
	}
	h.conn.mu.Unlock()

	<-h.conn.sem
	h.conn = nil
}

// Write 通过句柄写入命令
func (m *Manager) Write(h *Handle, cmd string) error {
	tr, err := handleTransport(h)
	if err != nil {
		return err
	}
	return tr.Write(cmd)
}

// Query 通过句柄查询，timeout为本次操作的显式超时
func (m *Manager) Query(h *Handle, cmd string, timeout time.Duration) (string, error) {
	tr, err := handleTransport(h)
	if err != nil {
		return "", err
	}
	return tr.Query(cmd, timeout)
}

// Reset 关闭指定仪器的底层传输，下次acquire时重新打开
func (m *Manager) Reset(id string) error {
	m.mu.Lock()
	conn, ok := m.conns[id]
	m.mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrNotFound, "未配置的仪器: %s", id)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.tr == nil {
		return nil
	}
	err := conn.tr.Close()
	conn.tr = nil
	conn.refs = 0
	m.logger.Info("Instrument connection reset", zap.String("instrument", id))
	if err != nil {
		return errors.Wrap(err, errors.ErrConnectionClosed)
	}
	return nil
}

// Close 关闭全部已打开的传输
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, conn := range m.conns {
		conn.mu.Lock()
		if conn.tr != nil {
			if err := conn.tr.Close(); err != nil {
				m.logger.Warn("Failed to close instrument",
					zap.String("instrument", id),
					zap.Error(err))
			}
			conn.tr = nil
			conn.refs = 0
		}
		conn.mu.Unlock()
	}
}

// Address 返回仪器的已解析地址（只读）
func (m *Manager) Address(id string) (*InstrumentAddress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok {
		return nil, false
	}
	return conn.addr, true
}

// handleTransport 校验句柄有效性并取出底层传输
func handleTransport(h *Handle) (Transport, error) {
	if h == nil || h.conn == nil {
		return nil, errors.New(errors.ErrConnectionClosed, "句柄已释放")
	}
	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	if h.conn.tr == nil {
		return nil, errors.New(errors.ErrConnectionClosed, "连接已关闭")
	}
	return h.conn.tr, nil
}
