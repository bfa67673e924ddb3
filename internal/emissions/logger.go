package emissions

import "github.com/rs/zerolog"

// logger is used for factor table parse diagnostics. It is silent until
// SetLogger is called.
var logger = zerolog.Nop()

// SetLogger sets the package logger.
func SetLogger(l zerolog.Logger) {
	logger = l
}
