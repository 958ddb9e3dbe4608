package pipeline

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Transient reports whether err represents a failure expected to occur
// under normal real-world network conditions: cancellation, timeout,
// name resolution failure, connection failure or loss, and offline
// conditions (including the simulated-offline mode).
//
// Everything else, certificate trust failures included, is
// non-transient. The classification never changes what the caller
// receives; it only decides whether the failure is reported through the
// error log or merely traced at debug level.
//
// Transient looks at wrapped causes within err, not just err itself.
// It never consults Temporary(), whose semantics are unclear.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, ErrOffline) {
		return true
	}

	var timeouter interface{ Timeout() bool }
	if errors.As(err, &timeouter) && timeouter.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.EPIPE, syscall.ENETDOWN, syscall.ENETRESET,
			syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}

	return false
}
