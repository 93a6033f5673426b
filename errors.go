package stagegraph

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/onstage/stagegraph/logging"
)

// ErrorHandler defines the interface for handling host errors that occur
// off the request path, such as slow control operations or device-change
// failures.
type ErrorHandler interface {
	HandleError(error)
}

// DefaultErrorHandler logs errors through the host logger.
type DefaultErrorHandler struct {
	log zerolog.Logger
}

// NewDefaultErrorHandler creates the standard logging error handler.
func NewDefaultErrorHandler() *DefaultErrorHandler {
	return &DefaultErrorHandler{log: logging.Component("host")}
}

// HandleError implements ErrorHandler
func (h *DefaultErrorHandler) HandleError(err error) {
	h.log.Error().Err(err).Msg("host error")
}

// PanicErrorHandler panics on any error (useful for development)
type PanicErrorHandler struct{}

// HandleError implements ErrorHandler interface by panicking
func (h *PanicErrorHandler) HandleError(err error) {
	panic(fmt.Sprintf("host error: %v", err))
}
