// Package common 提供配额采集通用的错误分类与重试逻辑
package common

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// 统一错误状态码常量
// 这些常量用于标识不同类型的错误，便于统一处理和重试决策
const (
	// ErrorStatusThrottling 表示限流错误，由 API 调用频率过高导致
	// 此类错误应该重试，使用指数退避策略
	ErrorStatusThrottling = "throttling"
	// ErrorStatusTransient 表示瞬态错误，通常是网络超时或连接失败
	// 此类错误应该重试，使用指数退避策略
	ErrorStatusTransient = "transient"
	// ErrorStatusAuth 表示认证错误，通常是由于无效的访问密钥或签名不匹配导致的
	// 此类错误不应重试，跳过该账号的当前任务并继续其他账号
	ErrorStatusAuth = "auth_error"
	// ErrorStatusNotApplicable 表示配额对该账号/区域不存在
	// 记录为缺失而非失败，不应重试
	ErrorStatusNotApplicable = "not_applicable"
	// ErrorStatusUnknown 表示未知错误，无法明确分类，按永久失败处理
	ErrorStatusUnknown = "error"
)

// ErrorClassifier 定义错误分类接口
// 实现该接口的类型可以将云厂商特定的错误分类为统一的错误状态码
type ErrorClassifier interface {
	// Classify 将错误分类为统一的错误状态码
	Classify(err error) string
}

// throttlingCodes 限流类 API 错误码
var throttlingCodes = map[string]bool{
	"Throttling":               true,
	"ThrottlingException":      true,
	"TooManyRequestsException": true,
	"RequestLimitExceeded":     true,
	"SlowDown":                 true,
}

// authCodes 认证/权限类 API 错误码
var authCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"AuthFailure":                 true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
	"UnauthorizedOperation":       true,
	"UnrecognizedClientException": true,
}

// notApplicableCodes 配额不存在类 API 错误码
var notApplicableCodes = map[string]bool{
	"NoSuchResourceException":   true,
	"ResourceNotFoundException": true,
}

// AWSErrorClassifier AWS 错误分类器
// 优先使用 smithy APIError 的错误码，失败时回退到消息子串匹配
type AWSErrorClassifier struct{}

// Classify 分类 AWS 错误
func (c *AWSErrorClassifier) Classify(err error) string {
	if err == nil {
		return ErrorStatusUnknown
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case throttlingCodes[code]:
			return ErrorStatusThrottling
		case authCodes[code]:
			return ErrorStatusAuth
		case notApplicableCodes[code]:
			return ErrorStatusNotApplicable
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorStatusTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorStatusTransient
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Throttling") || strings.Contains(msg, "Rate exceeded") || strings.Contains(msg, "TooManyRequests"):
		return ErrorStatusThrottling
	case strings.Contains(msg, "ExpiredToken") || strings.Contains(msg, "InvalidClientTokenId") || strings.Contains(msg, "AccessDenied"):
		return ErrorStatusAuth
	case strings.Contains(msg, "NoSuchResource") || strings.Contains(msg, "ResourceNotFound"):
		return ErrorStatusNotApplicable
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "network"):
		return ErrorStatusTransient
	}
	return ErrorStatusUnknown
}

// AWSClassifier 全局 AWS 错误分类器实例
var AWSClassifier = &AWSErrorClassifier{}

// ClassifyAWSError 分类 AWS 错误（便捷函数）
// 示例：
//
//	err := someAWSAPI()
//	status := common.ClassifyAWSError(err)
//	if status == common.ErrorStatusThrottling {
//	    // 处理限流错误
//	}
func ClassifyAWSError(err error) string {
	return AWSClassifier.Classify(err)
}

// APIErrorCode 提取 AWS API 错误码，无法提取时返回空串
func APIErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsRetryable 判断错误状态是否可重试（限流与瞬态错误）
func IsRetryable(status string) bool {
	return status == ErrorStatusThrottling || status == ErrorStatusTransient
}

// IsNotApplicable 判断错误是否表示配额对该账号/区域不存在
func IsNotApplicable(err error) bool {
	return ClassifyAWSError(err) == ErrorStatusNotApplicable
}
