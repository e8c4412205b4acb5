package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Station     StationConfig     `mapstructure:"station"`
	Instruments map[string]string `mapstructure:"instruments"`
	Fixture     FixtureConfig     `mapstructure:"fixture"`
	Drivers     DriversConfig     `mapstructure:"drivers"`
	Log         LogConfig         `mapstructure:"log"`
}

// StationConfig 工位运行配置
type StationConfig struct {
	Name           string        `mapstructure:"name"`
	RunAllTest     bool          `mapstructure:"run_all_test"`    // FAIL后是否继续执行剩余测试项
	SettleInterval time.Duration `mapstructure:"settle_interval"` // 电源设置后的稳定等待时间
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`   // 仪器查询默认超时
}

// FixtureConfig 转台/继电器治具串口链路配置
type FixtureConfig struct {
	Port         string        `mapstructure:"port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	StopBits     int           `mapstructure:"stop_bits"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`
}

// DriversConfig 驱动层配置
type DriversConfig struct {
	// 电压回读容差，按仪器型号覆盖默认值
	ToleranceRatio    map[string]float64 `mapstructure:"tolerance_ratio"`    // 相对容差（比例）
	ToleranceAbsolute map[string]float64 `mapstructure:"tolerance_absolute"` // 绝对容差
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("ATE_STATION")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 工位默认配置
	v.SetDefault("station.name", "station-01")
	v.SetDefault("station.run_all_test", true)
	v.SetDefault("station.settle_interval", "200ms")
	v.SetDefault("station.query_timeout", "3s")

	// 治具链路默认配置
	v.SetDefault("fixture.port", "/dev/ttyUSB0")
	v.SetDefault("fixture.baud_rate", 115200)
	v.SetDefault("fixture.stop_bits", 1)
	v.SetDefault("fixture.read_timeout", "100ms")
	v.SetDefault("fixture.reply_timeout", "3s")

	// 驱动默认容差
	v.SetDefault("drivers.tolerance_ratio.IT6723C", 0.01)
	v.SetDefault("drivers.tolerance_ratio.PSW3072", 0.01)
	v.SetDefault("drivers.tolerance_absolute.MODEL2303", 0.1)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "ate-station.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetDuration 获取时长配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}
