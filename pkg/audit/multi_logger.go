package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger fans audit events out to several destinations, typically a
// database sink plus a file sink. Async mode is the default; failures are
// collected on a bounded channel instead of blocking the request path.
type MultiLogger struct {
	eventLogger
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, len(loggers)),
	}
	m.eventLogger = eventLogger{sink: m}
	return m
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// fanOut applies fn to every destination and returns the first failure.
// A failing destination never prevents delivery to the others.
func (m *MultiLogger) fanOut(fn func(Logger) error) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := fn(logger); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Log delivers an audit event to all configured destinations
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if !m.async {
		return m.fanOut(func(l Logger) error {
			return l.Log(ctx, event)
		})
	}

	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				m.recordErr(err)
			}
		}(logger)
	}
	return nil
}

// recordErr stashes an async failure; when the channel is full the error
// is dropped rather than blocking a logging goroutine
func (m *MultiLogger) recordErr(err error) {
	select {
	case m.errChan <- err:
	default:
	}
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains and returns any errors collected during async logging
func (m *MultiLogger) GetErrors() []error {
	var errors []error
	for {
		select {
		case err := <-m.errChan:
			errors = append(errors, err)
		default:
			return errors
		}
	}
}

// Close flushes pending async writes and closes every destination
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	err := m.fanOut(Logger.Close)
	close(m.errChan)
	if err != nil {
		return fmt.Errorf("failed to close logger: %w", err)
	}
	return nil
}
