// Package health checks the dependencies a command needs before it starts
// changing anything.
package health

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Checker returns an error indicating if a dependency is in an unhealthy state.
type Checker interface {
	HealthCheck() error
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc func() error

func (f CheckerFunc) HealthCheck() error {
	return f()
}

// CheckHealth runs every checker, logging the reason of each failure, and
// returns an error naming the unhealthy ones.
func CheckHealth(logger log.Logger, checkers map[string]Checker) error {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		if err := checkers[name].HealthCheck(); err != nil {
			level.Error(log.With(logger, "component", "healthz")).Log("err", err, "health-checker", name)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("unhealthy: %s", strings.Join(failed, ", "))
	}
	return nil
}

// Nop creates a noop checker. Useful in tests.
func Nop() Checker {
	return CheckerFunc(func() error { return nil })
}
