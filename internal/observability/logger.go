package observability

import (
	"github.com/danmuck/strokectl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime logger and tags every line with the
// binary name and the process instance id.
func InitLogger(app, instance string) zerolog.Logger {
	logging.ConfigureRuntime()
	ctx := log.Logger.With().Str("app", app)
	if instance != "" {
		ctx = ctx.Str("instance", instance)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
