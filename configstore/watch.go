package configstore

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/autoprocess/autoprocess"
	"github.com/c360/autoprocess/errors"
)

// Op is the kind of change a watch reports.
type Op string

// Watch operations.
const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Event is one change of a stored definition. For OpPut, Process is the compiled
// definition; a stored definition that no longer compiles is reported with Err set
// and Process nil.
type Event struct {
	Op         Op
	ID         string
	Definition autoprocess.Definition
	Process    *autoprocess.Process
	Err        error
}

// Watch calls fn for every stored definition and then for every change until ctx is
// done. It returns once the initial values have been delivered.
func (s *Store) Watch(ctx context.Context, fn func(Event)) error {
	w, err := s.kv.Watch(ctx, ">")
	if err != nil {
		return errors.WrapTransient(err, "configstore", "Watch", "watch bucket")
	}

	initial := make(chan struct{})
	go func() {
		defer func() { _ = w.Stop() }()
		closed := false
		for {
			select {
			case <-ctx.Done():
				if !closed {
					close(initial)
				}
				return
			case entry, ok := <-w.Updates():
				if !ok {
					if !closed {
						close(initial)
					}
					return
				}
				if entry == nil {
					if !closed {
						close(initial)
						closed = true
					}
					continue
				}
				fn(s.event(entry))
			}
		}
	}()

	select {
	case <-initial:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "configstore", "Watch", "wait for initial values")
	}
}

func (s *Store) event(entry jetstream.KeyValueEntry) Event {
	ev := Event{ID: entry.Key()}
	if entry.Operation() != jetstream.KeyValuePut {
		ev.Op = OpDelete
		s.logger.Debug("Process removed from store", "process", ev.ID)
		return ev
	}

	ev.Op = OpPut
	d, err := decode(entry.Key(), entry.Value(), entry.Revision())
	if err != nil {
		ev.Err = err
		return ev
	}
	ev.Definition = d
	if ev.Process, ev.Err = autoprocess.Compile(d); ev.Err != nil {
		s.logger.Warn("Stored process does not compile", "process", ev.ID, "error", ev.Err)
	}
	return ev
}
