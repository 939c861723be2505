package obs

import (
	"go.uber.org/zap"
)

// NewLogger builds the process-wide zap logger. Callers scope it per
// component with logger.With(zap.String("component", "...")) rather than
// reaching for a package-level global.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Component returns a child logger tagged with the owning component name.
func Component(logger *zap.Logger, name string) *zap.Logger {
	return logger.With(zap.String("component", name))
}
