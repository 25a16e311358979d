package config

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.Formatter = jsonFormatter()
	Log.Out = os.Stdout
}

// ConfigureLogger applies LOG_LEVEL and LOG_FORMAT to the shared logger.
func ConfigureLogger(env Environment) {
	if lvl, err := logrus.ParseLevel(env.LogLevel); err == nil {
		Log.SetLevel(lvl)
	} else {
		Log.Warnf("config: unknown LOG_LEVEL %q, keeping %s", env.LogLevel, Log.GetLevel())
	}

	if env.LogFormat == "text" {
		Log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	} else {
		Log.Formatter = jsonFormatter()
	}
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
}
