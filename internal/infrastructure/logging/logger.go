package logging

import (
	"goldledger/internal/config"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewLogger 按配置创建 zap 日志
// development 模式输出可读格式，否则输出 JSON
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "日志级别不合法: %s", cfg.Level)
		}
		zcfg.Level = level
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "创建日志失败")
	}
	return logger, nil
}
