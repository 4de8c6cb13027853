package logger

import "go.uber.org/zap"

// Log is the process-wide logger. It discards everything until Init is called.
var Log = zap.NewNop()

// Init replaces Log with a production or development logger depending on env.
func Init(env string) {
	if env == "production" {
		Log = zap.Must(zap.NewProduction())
		return
	}
	Log = zap.Must(zap.NewDevelopment())
}

func Sugar() *zap.SugaredLogger {
	return Log.Sugar()
}
