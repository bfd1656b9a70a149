package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// Handler executes the commands it knows. ok is false when the command
// is not one of them, so the next handler in a Chain can try.
type Handler interface {
	Handle(ctx context.Context, req models.CommandRequest) (result models.CommandResult, ok bool)
}

// Chain tries its handlers in order, most specialised first, and reports
// unknown commands once every handler has declined.
type Chain struct {
	handlers []Handler
	logger   *slog.Logger
}

// NewChain creates a chain over handlers
func NewChain(logger *slog.Logger, handlers ...Handler) *Chain {
	return &Chain{handlers: handlers, logger: logger}
}

// ForPlatform builds the chain for a platform. The firewall handler, when
// given, is placed in front of generic on FreeBSD appliances only.
func ForPlatform(platform models.Platform, generic *Generic, fw *Firewall, logger *slog.Logger) *Chain {
	if platform == models.PlatformFreeBSD && fw != nil {
		return NewChain(logger, fw, generic)
	}
	return NewChain(logger, generic)
}

// Execute runs req and always returns a result. A nil payload is treated
// as empty and a panicking handler is reported as a failed result.
func (c *Chain) Execute(ctx context.Context, req models.CommandRequest) (result models.CommandResult) {
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Command handler panicked",
				"command", req.Command, "panic", r, "stack", string(debug.Stack()))
			result = Failure("internal error while running %s: %v", req.Command, r)
		}
		result.CorrelationID = req.ID
	}()

	for _, h := range c.handlers {
		if res, ok := h.Handle(ctx, req); ok {
			return res
		}
	}
	return Failure("unknown command: %s", req.Command)
}

// Knows reports whether command is a key this agent implements on any platform
func (c *Chain) Knows(command string) bool {
	return knownCommands[command]
}

// Success wraps output in a result
func Success(output any) models.CommandResult {
	return models.CommandResult{Output: output}
}

// Failure creates a failed result with a formatted message
func Failure(format string, args ...any) models.CommandResult {
	return models.CommandResult{Error: fmt.Sprintf(format, args...)}
}
