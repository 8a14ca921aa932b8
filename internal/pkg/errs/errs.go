// Package errs 定义回测核心的错误分类。
// 致命错误（配置/执行）通过 errors.Is 与哨兵值匹配；
// 非致命问题走 market.Diagnostic，不在此列。
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation 表示配置或参数非法，在模拟开始前抛出。
	ErrValidation = errors.New("validation error")
	// ErrExecution 表示撮合过程中的运行期不一致，对当次回测致命。
	ErrExecution = errors.New("execution error")
	// ErrBacktestConfig 表示回测构造参数非法（如空价格面板）。
	ErrBacktestConfig = errors.New("backtest config error")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Executionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExecution, fmt.Sprintf(format, args...))
}

func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBacktestConfig, fmt.Sprintf(format, args...))
}
