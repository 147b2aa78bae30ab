package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Log — общий логгер процесса. До вызова Init пишет в stderr с уровнем info.
var Log = logrus.New()

// Init инициализирует структурированный логгер: JSON для production, текст для development.
func Init(level string, production bool) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if production {
		Log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Discard отключает вывод логов (используется в тестах).
func Discard() {
	Log.SetOutput(io.Discard)
}

// Alert пишет ошибку уровня error с меткой alert=true для оповещения дежурных.
func Alert(msg string, fields logrus.Fields) {
	entry := Log.WithField("alert", true)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(msg)
}
