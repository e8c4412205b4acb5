package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrMissingParameter, "缺少Instrument参数")
	suite.NotNil(err)
	suite.Equal(ErrMissingParameter, err.Code)
	suite.Equal("缺少必需的测试参数", err.Message)
	suite.Equal("缺少Instrument参数", err.Details)

	// 测试多个详情
	err = New(ErrConnectionOpen, "打开失败", "端口: COM3", "波特率: 115200")
	suite.Equal("打开失败; 端口: COM3; 波特率: 115200", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrCodecSize, "期望 %d 字节, 实际 %d 字节", 10, 8)
	suite.NotNil(err)
	suite.Equal(ErrCodecSize, err.Code)
	suite.Equal("期望 10 字节, 实际 8 字节", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("read tty: i/o timeout")
	wrappedErr := Wrap(originalErr, ErrConnectionRead)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrConnectionRead, wrappedErr.Code)
	suite.Equal(originalErr, wrappedErr.Cause)
	suite.ErrorIs(wrappedErr, originalErr)

	// 包装nil返回nil
	suite.Nil(Wrap(nil, ErrConnectionRead))

	// 包装AppError保留原始错误码
	inner := New(ErrCRCMismatch)
	outer := Wrap(inner, ErrConnectionRead)
	suite.Equal(ErrCRCMismatch, outer.Code)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrConnectionTimeout)
	suite.True(Is(err, ErrConnectionTimeout))
	suite.False(Is(err, ErrConnectionOpen))
	suite.False(Is(nil, ErrConnectionTimeout))
	suite.False(Is(errors.New("plain"), ErrConnectionTimeout))
}

// 测试错误码获取
func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrFrameSync, GetCode(New(ErrFrameSync)))
}

// 测试错误分类辅助函数
func (suite *ErrorsTestSuite) TestCategories() {
	suite.True(IsConnection(New(ErrConnectionOpen)))
	suite.True(IsConnection(New(ErrAddressParse)))
	suite.False(IsConnection(New(ErrCRCMismatch)))

	suite.True(IsCodec(New(ErrCRCMismatch)))
	suite.True(IsCodec(New(ErrCodecSize)))
	suite.False(IsCodec(New(ErrConnectionOpen)))
	suite.False(IsCodec(nil))
}

// 测试错误消息格式
func (suite *ErrorsTestSuite) TestErrorString() {
	err := New(ErrLimitExceeded)
	suite.Equal("[5000] 测量值超出限值", err.Error())

	err = New(ErrLimitExceeded, "5.10 > 5.05")
	suite.Equal("[5000] 测量值超出限值: 5.10 > 5.05", err.Error())
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
