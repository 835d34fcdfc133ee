package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
	FatalLevel = "fatal"
)

var defaultLogger *zap.Logger

func init() {
	// main 读取配置后会再次调用 InitLogger 覆盖
	if err := InitLogger(InfoLevel, ""); err != nil {
		panic(err)
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger 按级别与文件路径初始化全局 logger；filePath 为空时输出到 stderr。
func InitLogger(level, filePath string) error {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var core zapcore.Core
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), parseLevel(level))
	} else {
		// stdout 留给命令行交互
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), parseLevel(level))
	}
	defaultLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return nil
}

// SetLogger 替换全局 logger，测试里可传 zap.NewNop() 或 zaptest logger。
func SetLogger(l *zap.Logger) {
	defaultLogger = l.WithOptions(zap.AddCallerSkip(1))
}

func Debug(msg string, fields ...interface{}) {
	defaultLogger.Sugar().Debugw(msg, fields...)
}

func Info(msg string, fields ...interface{}) {
	defaultLogger.Sugar().Infow(msg, fields...)
}

func Warn(msg string, fields ...interface{}) {
	defaultLogger.Sugar().Warnw(msg, fields...)
}

func Error(msg string, fields ...interface{}) {
	defaultLogger.Sugar().Errorw(msg, fields...)
}

// Fatal 记录后退出进程。
func Fatal(msg string, fields ...interface{}) {
	defaultLogger.Sugar().Fatalw(msg, fields...)
}

// With 返回带固定字段的子 logger。
func With(fields ...interface{}) *zap.SugaredLogger {
	return defaultLogger.Sugar().With(fields...)
}

// Sync 刷出缓冲的日志。
func Sync() error {
	return defaultLogger.Sync()
}
