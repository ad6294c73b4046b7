package sandbox

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Execution mode constants
const (
	ModeReadOnly = "readonly"
	ModeLab      = "lab"
)

// NewExecutor creates the appropriate query executor for the given mode
func NewExecutor(logger *zap.Logger, mode string, timeout time.Duration) (QueryExecutor, error) {
	switch mode {
	case ModeReadOnly:
		return NewReadOnlyExecutor(logger, timeout), nil
	case ModeLab:
		return NewLabExecutor(logger, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported execution mode: %s", mode)
	}
}
