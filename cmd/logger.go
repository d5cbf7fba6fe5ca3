package main

import (
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	rotates "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/config"
)

func parseLevel(s string) logrus.Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return logrus.TraceLevel
	case "DEBUG":
		return logrus.DebugLevel
	case "INFO":
		return logrus.InfoLevel
	case "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	case "FATAL":
		return logrus.FatalLevel
	case "PANIC":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel //默认
	}
}

func InitLogger(cfg *config.Config) error {
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	logrus.SetFormatter(formatter)
	logrus.SetLevel(parseLevel(cfg.Log.Level))

	//1、判断文件路径和文件是否存在，不存在则创建
	if _, err := os.Stat(cfg.Log.Dir); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Log.Dir, 0755); err != nil {
			return err
		}
	}
	logFileName := path.Join(cfg.Log.Dir, cfg.Log.Filename)

	//2、日志切割功能，按时间来切割
	opts := []rotates.Option{
		rotates.WithMaxAge(time.Duration(cfg.Log.MaxAge) * time.Hour),           //文件最大保存时间
		rotates.WithRotationTime(time.Duration(cfg.Log.RotateTime) * time.Hour), //文件切割间隔
	}
	if runtime.GOOS != "windows" {
		opts = append(opts, rotates.WithLinkName(logFileName)) //文件软链接
	}
	logWriter, err := rotates.New(logFileName+".%Y%m%d%H%M", opts...)
	if err != nil {
		return err
	}

	//3、所有级别写入同一个切割文件
	lfHook := lfshook.NewHook(lfshook.WriterMap{
		logrus.TraceLevel: logWriter,
		logrus.DebugLevel: logWriter,
		logrus.InfoLevel:  logWriter,
		logrus.WarnLevel:  logWriter,
		logrus.ErrorLevel: logWriter,
		logrus.FatalLevel: logWriter,
		logrus.PanicLevel: logWriter,
	}, &logrus.TextFormatter{})

	logrus.AddHook(lfHook)
	return nil
}
