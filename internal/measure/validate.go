package measure

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/wfunc/ate-station/internal/errors"
)

// NormalizeValue 按测量值类型归一化原始读数
// numeric类型接受仪器返回的科学计数法（如+4.99870000E+00），
// 统一渲染为定点十进制，保证结果记录内不出现指数记法
func NormalizeValue(raw string, vt ValueType) (string, error) {
	switch vt {
	case ValueNumeric:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return "", apperrors.Newf(apperrors.ErrValueCoercion, "无法解析数值: %q", raw)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case ValueString, "":
		return strings.TrimSpace(raw), nil
	default:
		return "", apperrors.Newf(apperrors.ErrValueCoercion, "未知的值类型: %q", vt)
	}
}

// Validate 按限值类型判定归一化后的测量值
// 返回PASS/FAIL与失败描述，限值定义本身非法时返回错误
func Validate(spec *TestPointSpec, measured string) (Verdict, string, error) {
	switch spec.LimitType {
	case LimitNone, "":
		return VerdictPass, "", nil

	case LimitExact:
		if spec.LowerLimit == "" {
			return "", "", apperrors.New(apperrors.ErrExpectedMissing, "exact限值缺少期望值")
		}
		if equalValue(measured, spec.LowerLimit, spec.ValueType) {
			return VerdictPass, "", nil
		}
		return VerdictFail, fmt.Sprintf("expected=%s measured=%s", spec.LowerLimit, measured), nil

	case LimitRange:
		v, err := strconv.ParseFloat(measured, 64)
		if err != nil {
			return "", "", apperrors.Newf(apperrors.ErrValueCoercion, "range限值要求数值: %q", measured)
		}
		lo, err := strconv.ParseFloat(spec.LowerLimit, 64)
		if err != nil {
			return "", "", apperrors.Newf(apperrors.ErrLimitType, "非法下限: %q", spec.LowerLimit)
		}
		hi, err := strconv.ParseFloat(spec.UpperLimit, 64)
		if err != nil {
			return "", "", apperrors.Newf(apperrors.ErrLimitType, "非法上限: %q", spec.UpperLimit)
		}
		if v >= lo && v <= hi {
			return VerdictPass, "", nil
		}
		return VerdictFail, fmt.Sprintf("limit=[%s,%s] measured=%s", spec.LowerLimit, spec.UpperLimit, measured), nil

	case LimitPartial:
		if spec.LowerLimit == "" {
			return "", "", apperrors.New(apperrors.ErrExpectedMissing, "partial限值缺少关键字")
		}
		if strings.Contains(measured, spec.LowerLimit) {
			return VerdictPass, "", nil
		}
		return VerdictFail, fmt.Sprintf("keyword=%q measured=%q", spec.LowerLimit, measured), nil

	default:
		return "", "", apperrors.Newf(apperrors.ErrLimitType, "未知的限值类型: %q", spec.LimitType)
	}
}

// equalValue exact限值比较
// numeric类型按数值比较，避免5.0与5.00字面不等
func equalValue(measured, expected string, vt ValueType) bool {
	if vt == ValueNumeric {
		mv, err1 := strconv.ParseFloat(measured, 64)
		ev, err2 := strconv.ParseFloat(expected, 64)
		if err1 == nil && err2 == nil {
			return mv == ev
		}
	}
	return measured == expected
}
