package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"alphapack/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "carrier", "encode", "ffmpeg exited", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"carrier", "encode", "ffmpeg exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestIsCancellation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"marker", services.Wrap(services.ErrUserCancelled, "pack", "", "", nil), true},
		{"context", fmt.Errorf("frame 3: %w", context.Canceled), true},
		{"worker failure", services.ErrWorkerFailure, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsCancellation(tc.err); got != tc.want {
				t.Fatalf("IsCancellation(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("plain"), "unknown"},
		{services.Wrap(services.ErrDecode, "container", "decode", "bad header", nil), "decode"},
		{services.Wrap(services.ErrTimeout, "workerpool", "compose", "", context.Canceled), "cancelled"},
		{fmt.Errorf("probe: %w", context.DeadlineExceeded), "timeout"},
		{services.Wrap(nil, "", "", "", nil), "external_tool"},
		{services.Wrap(services.ErrOutOfMemory, "bufpool", "acquire", "", nil), "out_of_memory"},
	}
	for _, tc := range cases {
		if got := services.ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
