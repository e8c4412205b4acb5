package measure

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/ate-station/internal/errors"
)

// Engine 测量执行引擎
// 负责测试点分发、测量值归一化与限值判定，
// 驱动层错误在此转换为ERROR结果，不向外传播error
type Engine struct {
	registry *Registry
	logger   *zap.Logger
	// 失败继续模式：单点FAIL/ERROR后继续执行后续测试点
	runAllTest bool
}

// NewEngine 构造测量引擎
func NewEngine(registry *Registry, runAllTest bool, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry:   registry,
		logger:     logger,
		runAllTest: runAllTest,
	}
}

// ExecutePoint 执行单个测试点，任何失败都以结果形式返回
func (e *Engine) ExecutePoint(ctx context.Context, spec *TestPointSpec) *MeasurementResult {
	start := time.Now()
	result := &MeasurementResult{
		ItemName: spec.ItemName,
		Result:   VerdictError,
	}
	defer func() {
		result.ExecutionDuration = time.Since(start)
	}()

	m, err := e.registry.Lookup(spec.TestType)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	raw, err := m.Execute(ctx, spec)
	if err != nil {
		result.ErrorMessage = err.Error()
		e.logger.Error("测试点执行失败",
			zap.String("item", spec.ItemName),
			zap.String("type", string(spec.TestType)),
			zap.Error(err))
		return result
	}

	measured, err := NormalizeValue(raw, spec.ValueType)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}
	result.MeasuredValue = measured

	verdict, reason, err := Validate(spec, measured)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}
	result.Result = verdict
	result.ErrorMessage = reason
	return result
}

// Session 测试会话
// 一次会话对应一份测试计划的顺序执行，按item_no升序单工作协程执行，
// 中止只发生在测试点之间，执行中的测试点不被打断
type Session struct {
	ID       string
	engine   *Engine
	registry *Registry
	logger   *zap.Logger
}

// NewSession 创建测试会话
func NewSession(engine *Engine) *Session {
	id := uuid.NewString()
	return &Session{
		ID:       id,
		engine:   engine,
		registry: engine.registry,
		logger:   engine.logger.With(zap.String("session", id)),
	}
}

// Run 顺序执行测试计划并返回全部结果
// 计划内每个测试点恰好产生一个结果；ctx取消后剩余测试点记为ERROR，
// 收尾时无条件复位所有用过的仪器与夹具控制器
func (s *Session) Run(ctx context.Context, specs []TestPointSpec) []MeasurementResult {
	ordered := append([]TestPointSpec(nil), specs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ItemNo < ordered[j].ItemNo
	})

	s.logger.Info("测试会话开始", zap.Int("points", len(ordered)))
	start := time.Now()

	results := make([]MeasurementResult, 0, len(ordered))
	skipping := false
	for i := range ordered {
		spec := &ordered[i]

		if err := ctx.Err(); err != nil {
			abort := apperrors.Wrap(err, apperrors.ErrSessionAborted, "会话已中止")
			results = append(results, MeasurementResult{
				ItemName:     spec.ItemName,
				Result:       VerdictError,
				ErrorMessage: abort.Error(),
			})
			continue
		}
		if skipping {
			results = append(results, MeasurementResult{
				ItemName: spec.ItemName,
				Result:   VerdictSkip,
			})
			continue
		}

		r := s.engine.ExecutePoint(ctx, spec)
		results = append(results, *r)
		s.logger.Info("测试点完成",
			zap.Int("item_no", spec.ItemNo),
			zap.String("item", spec.ItemName),
			zap.String("result", string(r.Result)),
			zap.String("value", r.MeasuredValue),
			zap.Duration("duration", r.ExecutionDuration))

		if !s.engine.runAllTest && (r.Result == VerdictFail || r.Result == VerdictError) {
			skipping = true
		}
	}

	// 收尾复位不使用已取消的ctx，仪器必须回到安全状态
	s.registry.teardown(context.Background())

	s.logger.Info("测试会话结束",
		zap.Int("results", len(results)),
		zap.Duration("total", time.Since(start)))
	return results
}
