package measure

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/ate-station/internal/driver"
	apperrors "github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/fixture"
)

// Chassis 转台控制能力，由夹具转台控制器实现
type Chassis interface {
	RotateClockwise(duration time.Duration) error
	RotateCounterclockwise(duration time.Duration) error
	StopRotation() error
	IsRotating() bool
	Reset() error
}

// Relay 继电器控制能力，由夹具继电器控制器实现
type Relay interface {
	SetRelayState(state fixture.RelayState, channel byte) error
	Reset() error
}

// Deps 测量实现的外部依赖
// Chassis/Relay允许为nil，对应测试类型执行时报错
type Deps struct {
	Bus     driver.Bus
	Drivers *driver.Registry
	Options *driver.Options
	Chassis Chassis
	Relay   Relay
	Logger  *zap.Logger
}

// Measurement 单个测试类型的执行实现
// 返回原始测量值，归一化与限值判定由引擎完成
type Measurement interface {
	Execute(ctx context.Context, spec *TestPointSpec) (string, error)
}

// MeasurementFunc 函数式Measurement适配
type MeasurementFunc func(ctx context.Context, spec *TestPointSpec) (string, error)

// Execute 实现Measurement接口
func (f MeasurementFunc) Execute(ctx context.Context, spec *TestPointSpec) (string, error) {
	return f(ctx, spec)
}

// driverPool 会话级驱动缓存
// 缓存按型号创建的驱动实例，跟踪已初始化的(型号,仪器)对，
// 会话结束时对所有用过的仪器无条件Reset
type driverPool struct {
	registry *driver.Registry
	bus      driver.Bus
	opts     *driver.Options
	logger   *zap.Logger

	mu          sync.Mutex
	drivers     map[string]driver.Driver
	initialized map[string]bool
	used        []usedInstrument
}

type usedInstrument struct {
	model      string
	instrument string
}

func newDriverPool(deps *Deps) *driverPool {
	return &driverPool{
		registry:    deps.Drivers,
		bus:         deps.Bus,
		opts:        deps.Options,
		logger:      deps.Logger,
		drivers:     make(map[string]driver.Driver),
		initialized: make(map[string]bool),
	}
}

// get 按型号获取驱动实例，同型号复用
func (p *driverPool) get(model string) (driver.Driver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.drivers[model]; ok {
		return d, nil
	}
	d, err := p.registry.New(model, p.bus, p.opts)
	if err != nil {
		return nil, err
	}
	p.drivers[model] = d
	return d, nil
}

// ensureInit 会话内首次使用某仪器时初始化一次
func (p *driverPool) ensureInit(ctx context.Context, d driver.Driver, model, instrument string) error {
	key := model + "|" + instrument
	p.mu.Lock()
	done := p.initialized[key]
	if !done {
		p.initialized[key] = true
		p.used = append(p.used, usedInstrument{model: model, instrument: instrument})
	}
	p.mu.Unlock()
	if done {
		return nil
	}
	if err := d.Initialize(ctx, instrument); err != nil {
		return err
	}
	return nil
}

// resetAll 会话结束时复位所有用过的仪器，失败只记录日志
func (p *driverPool) resetAll(ctx context.Context) {
	p.mu.Lock()
	used := append([]usedInstrument(nil), p.used...)
	p.mu.Unlock()
	for _, u := range used {
		d, err := p.get(u.model)
		if err != nil {
			continue
		}
		if err := d.Reset(ctx, u.instrument); err != nil {
			p.logger.Warn("仪器复位失败",
				zap.String("model", u.model),
				zap.String("instrument", u.instrument),
				zap.Error(err))
		}
	}
}

// modelFromParams 从测试参数解析仪器型号
// 优先取Model参数，否则按仪器编号约定截去"_序号"后缀并大写，
// 如"daq973a_1"对应型号DAQ973A
func modelFromParams(spec *TestPointSpec) (string, error) {
	if m, ok := spec.Parameters["Model"]; ok && m != "" {
		return m, nil
	}
	id, ok := spec.Parameters["Instrument"]
	if !ok || id == "" {
		return "", apperrors.New(apperrors.ErrMissingParameter, "缺少参数: Instrument")
	}
	if i := strings.LastIndex(id, "_"); i > 0 {
		if _, err := strconv.Atoi(id[i+1:]); err == nil {
			id = id[:i]
		}
	}
	return strings.ToUpper(id), nil
}

// Registry 测试类型到测量实现的映射
type Registry struct {
	deps  *Deps
	pool  *driverPool
	impls map[TestType]Measurement
}

// NewRegistry 构造测量注册表并装配内置测试类型
func NewRegistry(deps *Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := &Registry{
		deps:  deps,
		pool:  newDriverPool(deps),
		impls: make(map[TestType]Measurement),
	}
	r.impls[PowerSet] = MeasurementFunc(r.execDriver)
	r.impls[PowerRead] = MeasurementFunc(r.execDriver)
	r.impls[CommandTest] = MeasurementFunc(r.execCommandTest)
	r.impls[Wait] = MeasurementFunc(r.execWait)
	r.impls[RelayControl] = MeasurementFunc(r.execRelay)
	r.impls[ChassisRotation] = MeasurementFunc(r.execChassis)
	r.impls[Custom] = MeasurementFunc(r.execCustom)
	return r
}

// Register 注册/覆盖测试类型实现，站点可扩展自有类型
func (r *Registry) Register(tt TestType, m Measurement) {
	r.impls[tt] = m
}

// Lookup 查找测试类型实现
func (r *Registry) Lookup(tt TestType) (Measurement, error) {
	m, ok := r.impls[tt]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownTestType, "未知的测试类型: %q", tt)
	}
	return m, nil
}

// execDriver PowerSet/PowerRead统一走仪器驱动
func (r *Registry) execDriver(ctx context.Context, spec *TestPointSpec) (string, error) {
	model, err := modelFromParams(spec)
	if err != nil {
		return "", err
	}
	instrument := spec.Parameters["Instrument"]
	d, err := r.pool.get(model)
	if err != nil {
		return "", err
	}
	if err := r.pool.ensureInit(ctx, d, model, instrument); err != nil {
		return "", err
	}
	return d.Execute(ctx, driver.Params(spec.Parameters))
}

// execCommandTest 串口命令测试，走comport驱动
func (r *Registry) execCommandTest(ctx context.Context, spec *TestPointSpec) (string, error) {
	d, err := r.pool.get("comport")
	if err != nil {
		return "", err
	}
	return d.Execute(ctx, driver.Params(spec.Parameters))
}

// execWait 延时等待，Second参数为秒，支持小数
func (r *Registry) execWait(ctx context.Context, spec *TestPointSpec) (string, error) {
	raw, ok := spec.Parameters["Second"]
	if !ok {
		return "", apperrors.New(apperrors.ErrMissingParameter, "缺少参数: Second")
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || sec < 0 {
		return "", apperrors.Newf(apperrors.ErrValueCoercion, "非法等待时长: %q", raw)
	}
	t := time.NewTimer(time.Duration(sec * float64(time.Second)))
	defer t.Stop()
	select {
	case <-t.C:
		return driver.StatusOK, nil
	case <-ctx.Done():
		return "", apperrors.Wrap(ctx.Err(), apperrors.ErrSessionAborted, "等待被中止")
	}
}

// execRelay 继电器控制，参数Channel为通道号，State为ON/OFF
func (r *Registry) execRelay(ctx context.Context, spec *TestPointSpec) (string, error) {
	if r.deps.Relay == nil {
		return "", apperrors.New(apperrors.ErrFixtureStatus, "继电器控制器未初始化")
	}
	chRaw, ok := spec.Parameters["Channel"]
	if !ok {
		return "", apperrors.New(apperrors.ErrMissingParameter, "缺少参数: Channel")
	}
	ch, err := strconv.ParseUint(chRaw, 10, 8)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrValueCoercion, "非法通道号: %q", chRaw)
	}
	var state fixture.RelayState
	switch strings.ToUpper(spec.Parameters["State"]) {
	case "ON", "1", "CLOSE":
		state = fixture.SwitchClosed
	case "OFF", "0", "OPEN":
		state = fixture.SwitchOpen
	default:
		return "", apperrors.Newf(apperrors.ErrValueCoercion, "非法继电器状态: %q", spec.Parameters["State"])
	}
	if err := r.deps.Relay.SetRelayState(state, byte(ch)); err != nil {
		return "", err
	}
	return driver.StatusOK, nil
}

// execChassis 转台定时旋转，参数Direction为CW/CCW，Duration为毫秒
// 阻塞到旋转结束再返回，保证后续测试点在转台静止后执行
func (r *Registry) execChassis(ctx context.Context, spec *TestPointSpec) (string, error) {
	if r.deps.Chassis == nil {
		return "", apperrors.New(apperrors.ErrFixtureStatus, "转台控制器未初始化")
	}
	durRaw, ok := spec.Parameters["Duration"]
	if !ok {
		return "", apperrors.New(apperrors.ErrMissingParameter, "缺少参数: Duration")
	}
	ms, err := strconv.ParseUint(durRaw, 10, 32)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrValueCoercion, "非法旋转时长: %q", durRaw)
	}
	duration := time.Duration(ms) * time.Millisecond

	switch strings.ToUpper(spec.Parameters["Direction"]) {
	case "CW", "":
		err = r.deps.Chassis.RotateClockwise(duration)
	case "CCW":
		err = r.deps.Chassis.RotateCounterclockwise(duration)
	default:
		return "", apperrors.Newf(apperrors.ErrValueCoercion, "非法旋转方向: %q", spec.Parameters["Direction"])
	}
	if err != nil {
		return "", err
	}

	t := time.NewTimer(duration)
	defer t.Stop()
	select {
	case <-t.C:
		return driver.StatusOK, nil
	case <-ctx.Done():
		_ = r.deps.Chassis.StopRotation()
		return "", apperrors.Wrap(ctx.Err(), apperrors.ErrSessionAborted, "旋转被中止")
	}
}

// execCustom 自定义SCPI命令直通
// Query=1时读取响应作为测量值，否则只写入并返回状态
func (r *Registry) execCustom(ctx context.Context, spec *TestPointSpec) (string, error) {
	instrument, ok := spec.Parameters["Instrument"]
	if !ok {
		return "", apperrors.New(apperrors.ErrMissingParameter, "缺少参数: Instrument")
	}
	cmd, ok := spec.Parameters["Command"]
	if !ok {
		return "", apperrors.New(apperrors.ErrMissingParameter, "缺少参数: Command")
	}
	h, err := r.deps.Bus.Acquire(ctx, instrument)
	if err != nil {
		return "", err
	}
	defer r.deps.Bus.Release(h)

	query := spec.Parameters["Query"]
	if query == "1" || strings.EqualFold(query, "true") || strings.HasSuffix(cmd, "?") {
		resp, err := r.deps.Bus.Query(h, cmd, r.timeout())
		if err != nil {
			return "", err
		}
		return resp, nil
	}
	if err := r.deps.Bus.Write(h, cmd); err != nil {
		return "", err
	}
	return driver.StatusOK, nil
}

func (r *Registry) timeout() time.Duration {
	if r.deps.Options != nil && r.deps.Options.QueryTimeout > 0 {
		return r.deps.Options.QueryTimeout
	}
	return 3 * time.Second
}

// teardown 会话结束收尾：复位所有已初始化仪器与夹具控制器
func (r *Registry) teardown(ctx context.Context) {
	r.pool.resetAll(ctx)
	if r.deps.Chassis != nil {
		if err := r.deps.Chassis.Reset(); err != nil {
			r.deps.Logger.Warn("转台复位失败", zap.Error(err))
		}
	}
	if r.deps.Relay != nil {
		if err := r.deps.Relay.Reset(); err != nil {
			r.deps.Logger.Warn("继电器复位失败", zap.Error(err))
		}
	}
}
