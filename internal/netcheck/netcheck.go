// Package netcheck answers whether the host currently has an active network path.
package netcheck

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
)

// ErrNoConnectivity is returned instead of sending a request when no network path is available.
var ErrNoConnectivity = errors.New("no network connectivity")

// Checker reports whether a request has any chance of leaving the host.
type Checker interface {
	Available(ctx context.Context) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) bool

func (f CheckerFunc) Available(ctx context.Context) bool {
	return f(ctx)
}

// Static always returns online.
func Static(online bool) Checker {
	return CheckerFunc(func(context.Context) bool { return online })
}

// Toggle is a Checker whose answer can be flipped at runtime, e.g. to simulate going offline.
type Toggle struct {
	offline atomic.Bool
}

func NewToggle(online bool) *Toggle {
	t := &Toggle{}
	t.offline.Store(!online)
	return t
}

func (t *Toggle) Set(online bool) {
	t.offline.Store(!online)
}

func (t *Toggle) Available(context.Context) bool {
	return !t.offline.Load()
}

// Interfaces returns a Checker that looks for at least one interface that is up,
// is not loopback, and has an address assigned.
func Interfaces() Checker {
	return CheckerFunc(func(ctx context.Context) bool {
		if ctx.Err() != nil {
			return false
		}
		ifaces, err := net.Interfaces()
		if err != nil {
			slog.Debug("netcheck: list interfaces failed", "error", err)
			return false
		}
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil || len(addrs) == 0 {
				continue
			}
			return true
		}
		return false
	})
}
