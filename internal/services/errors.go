package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Markers classify failures. Wrap attaches one to every error leaving a
// package so callers can branch with errors.Is.
var (
	ErrExternalTool       = errors.New("external tool error")
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrTimeout            = errors.New("timeout")
	ErrUserCancelled      = errors.New("cancelled by user")
	ErrWorkerFailure      = errors.New("worker failure")
	ErrUnsupportedCarrier = errors.New("unsupported carrier format")
	ErrDecode             = errors.New("decode error")
	ErrOutOfMemory        = errors.New("out of memory")
)

// Checked in order; cancellation first so a timeout raised while shutting
// down still reads as cancelled.
var errorKinds = []struct {
	marker error
	kind   string
}{
	{ErrUserCancelled, "cancelled"},
	{context.Canceled, "cancelled"},
	{ErrTimeout, "timeout"},
	{context.DeadlineExceeded, "timeout"},
	{ErrWorkerFailure, "worker_failure"},
	{ErrOutOfMemory, "out_of_memory"},
	{ErrUnsupportedCarrier, "unsupported_carrier"},
	{ErrDecode, "decode"},
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrExternalTool, "external_tool"},
}

// Wrap returns "<marker>: stage: operation: message[: err]" with both marker
// and err reachable through errors.Is. A nil marker means ErrExternalTool.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	detail := joinDetail(stage, operation, message)
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// IsCancellation reports whether err stems from the caller giving up.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrUserCancelled) || errors.Is(err, context.Canceled)
}

// ErrorKind names the marker carried by err for logs and the job ledger.
// Unmarked errors are "unknown"; nil is "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.marker) {
			return k.kind
		}
	}
	return "unknown"
}

func joinDetail(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "service failure"
	}
	return strings.Join(kept, ": ")
}
