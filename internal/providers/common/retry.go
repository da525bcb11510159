package common

import (
	"context"
	"time"
)

// RetryPolicy 定义分类感知的重试策略
// 作为显式值对象在调用点使用，仅对限流与瞬态错误重试，
// 认证、配额不存在与未知永久错误立即返回
type RetryPolicy struct {
	// MaxAttempts 最大尝试次数（包括首次），默认 3
	MaxAttempts int
	// BaseDelay 首次重试前的等待时间，默认 2s
	BaseDelay time.Duration
	// MaxDelay 单次等待时间上限，默认 30s
	MaxDelay time.Duration
	// Multiplier 指数退避因子，默认 2.0
	Multiplier float64
	// Classifier 错误分类器，默认 AWSClassifier
	Classifier ErrorClassifier
}

// DefaultRetryPolicy 返回默认重试策略：3 次尝试，等待 2s、4s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Classifier:  AWSClassifier,
	}
}

// normalize 填充零值字段为默认值
func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Classifier == nil {
		p.Classifier = AWSClassifier
	}
	return p
}

// Do 执行 fn 并按策略重试
//
// 返回值：
//   - 成功时返回 nil
//   - 永久错误（认证、不存在、未知）首次出现即返回
//   - 可重试错误在达到最大尝试次数后返回最后一次的错误
//   - 上下文取消时返回 ctx.Err()
//
// 示例：
//
//	policy := common.DefaultRetryPolicy()
//	err := policy.Do(ctx, func() error {
//	    return callServiceQuotas()
//	})
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	p = p.normalize()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// 永久错误不重试
		if !IsRetryable(p.Classifier.Classify(err)) {
			return err
		}

		// 最后一次尝试失败后不再等待
		if attempt >= p.MaxAttempts-1 {
			break
		}

		// 指数退避：BaseDelay * Multiplier^attempt，封顶 MaxDelay
		delay := time.Duration(float64(p.BaseDelay) * pow(p.Multiplier, float64(attempt)))
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}

		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		} else {
			time.Sleep(delay)
		}
	}

	return lastErr
}

// pow 计算 x 的 y 次方（简单实现，避免引入 math 包）
func pow(x, y float64) float64 {
	result := 1.0
	for i := 0; i < int(y); i++ {
		result *= x
	}
	return result
}
