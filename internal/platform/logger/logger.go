package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// log 是全局的zap实例，通过 L() 访问
var log *zap.Logger = zap.NewNop()

// Init 根据服务器模式初始化全局日志器
// debug模式使用带颜色的开发配置，release模式使用JSON生产配置
func Init(mode string) {
	var (
		l   *zap.Logger
		err error
	)
	if mode == "release" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(fmt.Sprintf("无法初始化日志器: %v", err))
	}
	log = l
}

// L 返回全局日志器
func L() *zap.Logger {
	return log
}

// Sync 在进程退出前冲刷缓冲的日志
func Sync() {
	_ = log.Sync()
}
