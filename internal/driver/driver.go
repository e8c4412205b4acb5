package driver

import (
	"context"
	"time"

	"github.com/wfunc/ate-station/internal/config"
	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/transport"
)

// StatusOK 驱动执行成功的标志值
// 校验不通过时返回描述性失败字符串而不是错误，测试会话据此记FAIL并继续
const StatusOK = "1"

// Params 测试参数，键值均为字符串
type Params map[string]string

// Get 获取参数值
func (p Params) Get(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Require 获取必需参数，缺失时返回测量执行错误
func (p Params) Require(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return "", errors.Newf(errors.ErrMissingParameter, "缺少参数: %s", key)
	}
	return v, nil
}

// Bus 仪器总线访问接口，由连接管理器实现
type Bus interface {
	Acquire(ctx context.Context, id string) (*transport.Handle, error)
	Release(h *transport.Handle)
	Write(h *transport.Handle, cmd string) error
	Query(h *transport.Handle, cmd string, timeout time.Duration) (string, error)
}

// Driver 仪器驱动能力接口
type Driver interface {
	// Initialize 将仪器带到已知空闲状态，会话首次使用该仪器时调用一次
	Initialize(ctx context.Context, instrument string) error
	// Reset 会话结束时无条件调用，仪器未完成初始化时也必须可以安全调用
	Reset(ctx context.Context, instrument string) error
	// Execute 执行一次测量/设置，返回状态字符串
	Execute(ctx context.Context, params Params) (string, error)
}

// Options 驱动层配置
type Options struct {
	QueryTimeout   time.Duration
	SettleInterval time.Duration
	// 电压/电流回读容差，按仪器型号配置
	ToleranceRatio    map[string]float64
	ToleranceAbsolute map[string]float64
}

// OptionsFromConfig 从全局配置构造驱动层配置
func OptionsFromConfig(cfg *config.Config) *Options {
	return &Options{
		QueryTimeout:      cfg.Station.QueryTimeout,
		SettleInterval:    cfg.Station.SettleInterval,
		ToleranceRatio:    cfg.Drivers.ToleranceRatio,
		ToleranceAbsolute: cfg.Drivers.ToleranceAbsolute,
	}
}

// 未配置时的默认容差
const (
	defaultQueryTimeout   = 3 * time.Second
	defaultSettleInterval = 200 * time.Millisecond
)

// queryTimeout 返回配置的查询超时
func (o *Options) queryTimeout() time.Duration {
	if o == nil || o.QueryTimeout <= 0 {
		return defaultQueryTimeout
	}
	return o.QueryTimeout
}

// settleInterval 返回配置的稳定等待时间
func (o *Options) settleInterval() time.Duration {
	if o == nil || o.SettleInterval <= 0 {
		return defaultSettleInterval
	}
	return o.SettleInterval
}

// toleranceRatio 返回指定型号的相对容差
func (o *Options) toleranceRatio(model string, def float64) float64 {
	if o != nil {
		if v, ok := o.ToleranceRatio[model]; ok {
			return v
		}
	}
	return def
}

// toleranceAbsolute 返回指定型号的绝对容差
func (o *Options) toleranceAbsolute(model string, def float64) float64 {
	if o != nil {
		if v, ok := o.ToleranceAbsolute[model]; ok {
			return v
		}
	}
	return def
}

// Constructor 驱动构造函数
type Constructor func(bus Bus, opts *Options) Driver

// Registry 仪器型号到驱动构造函数的注册表
// 启动时显式构建一次，通过引用传给调度引擎，不使用包级可变状态
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register 注册驱动构造函数
func (r *Registry) Register(model string, c Constructor) {
	r.constructors[model] = c
}

// New 按仪器型号创建驱动实例
func (r *Registry) New(model string, bus Bus, opts *Options) (Driver, error) {
	c, ok := r.constructors[model]
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownInstrument, "仪器型号: %s", model)
	}
	return c(bus, opts), nil
}

// Models 返回已注册的仪器型号
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.constructors))
	for m := range r.constructors {
		models = append(models, m)
	}
	return models
}

// DefaultRegistry 构建内置驱动注册表
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("DAQ973A", NewDAQ973A)
	r.Register("MODEL2303", NewModel2303)
	r.Register("IT6723C", NewIT6723C)
	r.Register("PSW3072", NewPSW3072)
	r.Register("N5182A", NewN5182A)
	r.Register("comport", NewComport)
	return r
}
