package measure

import "time"

// TestType 测试类型
type TestType string

// 测试类型定义
const (
	PowerSet        TestType = "PowerSet"        // 电源设置
	PowerRead       TestType = "PowerRead"       // 电参数读取
	CommandTest     TestType = "CommandTest"     // 串口命令测试
	Wait            TestType = "Wait"            // 延时等待
	RelayControl    TestType = "RelayControl"    // 继电器控制
	ChassisRotation TestType = "ChassisRotation" // 转台旋转
	Custom          TestType = "Custom"          // 自定义SCPI命令
)

// ValueType 测量值类型
type ValueType string

// 测量值类型定义
const (
	ValueNumeric ValueType = "numeric"
	ValueString  ValueType = "string"
)

// LimitType 限值类型
type LimitType string

// 限值类型定义
const (
	LimitNone    LimitType = "none"    // 执行成功即PASS
	LimitExact   LimitType = "exact"   // 与期望值完全相等
	LimitRange   LimitType = "range"   // 下限 ≤ 测量值 ≤ 上限
	LimitPartial LimitType = "partial" // 包含关键字
)

// Verdict 测试结论
type Verdict string

// 测试结论定义
const (
	VerdictPass  Verdict = "PASS"
	VerdictFail  Verdict = "FAIL"
	VerdictSkip  Verdict = "SKIP"
	VerdictError Verdict = "ERROR"
)

// TestPointSpec 测试点定义
// 由外部测试计划方创建，引擎只读
type TestPointSpec struct {
	ItemNo     int               `json:"item_no"`
	ItemName   string            `json:"item_name"` // 计划内唯一
	TestType   TestType          `json:"test_type"`
	Parameters map[string]string `json:"parameters"`
	ValueType  ValueType         `json:"value_type"`
	LimitType  LimitType         `json:"limit_type"`
	LowerLimit string            `json:"lower_limit"`
	UpperLimit string            `json:"upper_limit"`
	Unit       string            `json:"unit"`
}

// MeasurementResult 测量结果
// 每次执行创建一次，交回外部测试计划方后不再修改
type MeasurementResult struct {
	ItemName          string        `json:"item_name"`
	Result            Verdict       `json:"result"`
	MeasuredValue     string        `json:"measured_value,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	ExecutionDuration time.Duration `json:"execution_duration"`
}
