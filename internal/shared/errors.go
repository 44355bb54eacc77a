// Package shared contains the error taxonomy used across hotcron.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors. Components wrap them so callers can classify failures
// with errors.Is or KindOf.
var (
	// ErrConfigUnavailable indicates the crontab file is missing, unreadable or malformed.
	ErrConfigUnavailable = errors.New("crontab unavailable")

	// ErrSpawnFailure indicates a child process could not be started.
	ErrSpawnFailure = errors.New("spawn failure")

	// ErrTelemetryDelivery indicates a notification channel rejected or lost an event.
	ErrTelemetryDelivery = errors.New("telemetry delivery failed")

	// ErrReloadCanceled indicates a reload waiting for the exclusive section was
	// canceled by a registry reset.
	ErrReloadCanceled = errors.New("reload canceled")

	// ErrNotFound indicates that a requested job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid configuration or input.
	ErrValidation = errors.New("validation failed")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")
)

// Kind is a coarse error category.
type Kind int

const (
	KindUnknown Kind = iota
	KindCanceled
	KindTimeout
	KindConfigUnavailable
	KindSpawnFailure
	KindTelemetryDelivery
	KindReloadCanceled
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindCanceled:
		return "Canceled"
	case KindTimeout:
		return "Timeout"
	case KindConfigUnavailable:
		return "ConfigUnavailable"
	case KindSpawnFailure:
		return "SpawnFailure"
	case KindTelemetryDelivery:
		return "TelemetryDelivery"
	case KindReloadCanceled:
		return "ReloadCanceled"
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// classification order for KindOf; earlier entries win for joined errors.
var kindOrder = []struct {
	kind     Kind
	sentinel error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindReloadCanceled, ErrReloadCanceled},
	{KindConfigUnavailable, ErrConfigUnavailable},
	{KindSpawnFailure, ErrSpawnFailure},
	{KindTelemetryDelivery, ErrTelemetryDelivery},
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
}

// KindOf classifies err by walking its chain. Cancellation and timeouts take
// precedence over domain sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kindOrder {
		switch k.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, k.sentinel) {
				return k.kind
			}
		}
	}
	return KindUnknown
}

// SentinelOf returns the sentinel error for kind, or nil for KindUnknown and KindCanceled.
func SentinelOf(kind Kind) error {
	for _, k := range kindOrder {
		if k.kind == kind {
			return k.sentinel
		}
	}
	return nil
}

// MarkKind wraps err with the sentinel of kind so that both
// errors.Is(result, err) and KindOf(result) == kind hold.
// Marking is idempotent. A nil err yields the bare sentinel.
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap returns "msg: err", or nil when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports deadline, ErrTimeout and net timeouts.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func IsConfigUnavailable(err error) bool { return errors.Is(err, ErrConfigUnavailable) }
func IsSpawnFailure(err error) bool      { return errors.Is(err, ErrSpawnFailure) }
func IsTelemetryDelivery(err error) bool { return errors.Is(err, ErrTelemetryDelivery) }
func IsReloadCanceled(err error) bool    { return errors.Is(err, ErrReloadCanceled) }
func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
