package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

var ErrCircuitOpen = errors.New("warehouse circuit breaker open")

// ResilientExecutor retries transient query failures with exponential
// backoff and stops calling the warehouse while its circuit is open.
type ResilientExecutor struct {
	next       Executor
	breaker    *gobreaker.CircuitBreaker
	maxElapsed time.Duration
}

func NewResilientExecutor(next Executor, maxElapsed time.Duration) *ResilientExecutor {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "warehouse",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("store: circuit %s %s -> %s", name, from, to)
		},
	})
	return &ResilientExecutor{next: next, breaker: cb, maxElapsed: maxElapsed}
}

func (r *ResilientExecutor) Execute(ctx context.Context, query string, args ...any) (*Table, error) {
	var table *Table
	operation := func() error {
		res, err := r.breaker.Execute(func() (interface{}, error) {
			return r.next.Execute(ctx, query, args...)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
			}
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		table = res.(*Table)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = r.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return table, nil
}

// isTransient reports whether a query error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

var _ Executor = (*ResilientExecutor)(nil)
