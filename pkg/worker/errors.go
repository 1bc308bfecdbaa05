package worker

import (
	stderrors "errors"
	"fmt"

	"github.com/c360/autoprocess/errors"
)

// Pool errors.
var (
	ErrPoolNotStarted     = stderrors.New("worker pool not started")
	ErrPoolStopped        = fmt.Errorf("worker pool stopped: %w", errors.ErrShuttingDown)
	ErrPoolAlreadyStarted = stderrors.New("worker pool already started")
	ErrNilProcessor       = stderrors.New("processor function cannot be nil")
	ErrStopTimeout        = stderrors.New("timeout waiting for workers to stop")

	// ErrQueueFull matches errors.ErrQueueFull.
	ErrQueueFull = fmt.Errorf("worker pool queue full: %w", errors.ErrQueueFull)
)
