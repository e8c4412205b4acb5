package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/ate-station/internal/config"
	"github.com/wfunc/ate-station/internal/driver"
	"github.com/wfunc/ate-station/internal/errors"
	"github.com/wfunc/ate-station/internal/fixture"
	"github.com/wfunc/ate-station/internal/logger"
	"github.com/wfunc/ate-station/internal/measure"
	"github.com/wfunc/ate-station/internal/transport"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Station 工位实例
type Station struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *transport.Manager
	link    *fixture.Link
	session *measure.Session
}

func main() {
	os.Exit(run())
}

// run 实际入口，保证defer在退出前执行
func run() int {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		planPath    = flag.String("plan", "", "测试计划JSON文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		return 0
	}

	if *showHelp {
		printHelp()
		return 0
	}

	if *planPath == "" {
		fmt.Println("缺少测试计划: -plan=/path/to/plan.json")
		return 2
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		return 2
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		return 2
	}
	defer logger.Sync()

	// 加载测试计划
	specs, err := loadPlan(*planPath)
	if err != nil {
		logger.Error("加载测试计划失败", zap.Error(err))
		return 2
	}

	// 创建工位实例
	station, err := NewStation(cfg, specs)
	if err != nil {
		logger.Error("工位初始化失败", zap.Error(err))
		return 2
	}
	defer station.Close()

	// Ctrl+C中止：中止只作用于测试点之间，执行中的测试点不被打断
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results := station.session.Run(ctx, specs)

	printResults(station.session.ID, results)
	return exitCode(results)
}

// NewStation 创建工位实例并装配各层组件
func NewStation(cfg *config.Config, specs []measure.TestPointSpec) (*Station, error) {
	manager, err := transport.NewManager(cfg.Instruments)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "仪器地址配置无效")
	}

	s := &Station{
		cfg:     cfg,
		logger:  logger.GetLogger(),
		manager: manager,
	}

	deps := &measure.Deps{
		Bus:     manager,
		Drivers: driver.DefaultRegistry(),
		Options: driver.OptionsFromConfig(cfg),
		Logger:  logger.GetModuleLogger("measure"),
	}

	// 计划内有夹具动作时才连接治具串口
	if planNeedsFixture(specs) {
		link := fixture.NewLink(&cfg.Fixture)
		if err := link.Connect(); err != nil {
			return nil, errors.Wrap(err, errors.ErrConnectionOpen, "治具串口连接失败")
		}
		s.link = link
		deps.Chassis = fixture.InitChassis(link, cfg.Fixture.ReplyTimeout)
		deps.Relay = fixture.InitRelay(link, cfg.Fixture.ReplyTimeout)
	}

	engine := measure.NewEngine(measure.NewRegistry(deps), cfg.Station.RunAllTest, s.logger)
	s.session = measure.NewSession(engine)

	s.logger.Info("工位初始化完成",
		zap.String("station", cfg.Station.Name),
		zap.String("session", s.session.ID),
		zap.Int("instruments", len(cfg.Instruments)),
		zap.Bool("fixture", s.link != nil))
	return s, nil
}

// Close 关闭工位持有的连接
func (s *Station) Close() {
	if s.manager != nil {
		s.manager.Close()
	}
	if s.link != nil {
		if err := s.link.Disconnect(); err != nil {
			s.logger.Warn("治具串口断开失败", zap.Error(err))
		}
	}
}

// loadPlan 从JSON文件加载测试计划
func loadPlan(path string) ([]measure.TestPointSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "读取测试计划 %s", path)
	}
	var specs []measure.TestPointSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "解析测试计划失败")
	}
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrConfigParse, "测试计划为空")
	}
	// 测试项名称计划内唯一
	seen := make(map[string]bool, len(specs))
	for i := range specs {
		if seen[specs[i].ItemName] {
			return nil, errors.Newf(errors.ErrConfigParse, "重复的测试项名称: %s", specs[i].ItemName)
		}
		seen[specs[i].ItemName] = true
	}
	return specs, nil
}

// planNeedsFixture 计划内是否有夹具动作
func planNeedsFixture(specs []measure.TestPointSpec) bool {
	for i := range specs {
		switch specs[i].TestType {
		case measure.RelayControl, measure.ChassisRotation:
			return true
		}
	}
	return false
}

// printResults 打印结果汇总表
func printResults(sessionID string, results []measure.MeasurementResult) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("会话: %s\n", sessionID)
	fmt.Println("───────────────────────────────────────────────────────────────")
	var pass, fail, skip, errCount int
	var total time.Duration
	for _, r := range results {
		fmt.Printf("%-6s %-32s %-16s %s\n",
			r.Result, r.ItemName, r.MeasuredValue, r.ErrorMessage)
		total += r.ExecutionDuration
		switch r.Result {
		case measure.VerdictPass:
			pass++
		case measure.VerdictFail:
			fail++
		case measure.VerdictSkip:
			skip++
		default:
			errCount++
		}
	}
	fmt.Println("───────────────────────────────────────────────────────────────")
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d ERROR=%d 总耗时=%s\n",
		pass, fail, skip, errCount, total.Round(time.Millisecond))
	fmt.Println("═══════════════════════════════════════════════════════════════")
}

// exitCode 全部PASS/SKIP返回0，有FAIL返回1，有ERROR返回2
func exitCode(results []measure.MeasurementResult) int {
	code := 0
	for _, r := range results {
		switch r.Result {
		case measure.VerdictError:
			return 2
		case measure.VerdictFail:
			code = 1
		}
	}
	return code
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Println("ATE工位测试程序")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("ATE工位测试程序")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  ate-station [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  ATE_STATION_*          覆盖任意配置项，如ATE_STATION_STATION_RUN_ALL_TEST")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  ate-station -config=config/config.yaml -plan=plans/board_a.json")
	fmt.Println("  ate-station -version")
}
