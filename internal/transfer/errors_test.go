package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestSetupError_Error verifies error message formatting
func TestSetupError_Error(t *testing.T) {
	err := &SetupError{
		TargetPath: "/music/album/track01.flac",
		Err:        errors.New("permission denied"),
	}

	expected := "setup failed for /music/album/track01.flac: permission denied"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestProbeError_Error verifies error message formatting
func TestProbeError_Error(t *testing.T) {
	err := &ProbeError{
		URL: "https://cdn.example.com/t1",
		Err: errors.New("no content length"),
	}

	expected := "size probe failed for https://cdn.example.com/t1: no content length"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestTransferError_Error verifies error message formatting
func TestTransferError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *TransferError
		wantFormat string
	}{
		{
			name: "with HTTP status code",
			err: &TransferError{
				URL:        "https://cdn.example.com/t1",
				StatusCode: 503,
				Err:        errors.New("HTTP 503"),
			},
			wantFormat: "transfer failed for https://cdn.example.com/t1 (HTTP 503)",
		},
		{
			name: "without HTTP status code",
			err: &TransferError{
				URL: "https://cdn.example.com/t1",
				Err: errors.New("connection reset"),
			},
			wantFormat: "transfer failed for https://cdn.example.com/t1: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantFormat {
				t.Errorf("Error() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

// TestErrors_Unwrap verifies error chain traversal
func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("underlying cause")

	tests := []struct {
		name string
		err  error
	}{
		{
			name: "SetupError",
			err:  &SetupError{TargetPath: "/music/a.flac", Err: cause},
		},
		{
			name: "ProbeError",
			err:  &ProbeError{URL: "https://cdn.example.com/t1", Err: cause},
		},
		{
			name: "TransferError",
			err:  &TransferError{URL: "https://cdn.example.com/t1", StatusCode: 500, Err: cause},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unwrapped := errors.Unwrap(tt.err); unwrapped != cause {
				t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
			}

			wrapped := fmt.Errorf("context: %w", tt.err)
			if !errors.Is(wrapped, cause) {
				t.Error("errors.Is() should find cause in wrapped chain")
			}
		})
	}
}

// TestTransferError_As verifies programmatic error type detection
func TestTransferError_As(t *testing.T) {
	originalErr := &TransferError{
		URL:        "https://cdn.example.com/t1",
		StatusCode: 404,
		Err:        errors.New("HTTP 404"),
	}

	wrapped := fmt.Errorf("context: %w", originalErr)

	var target *TransferError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As() should extract TransferError from wrapped chain")
	}

	if target.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want %d", target.StatusCode, 404)
	}
}

func TestIsCancellation(t *testing.T) {
	liveCtx := context.Background()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{
			name: "context.Canceled error",
			ctx:  liveCtx,
			err:  context.Canceled,
			want: true,
		},
		{
			name: "deadline exceeded error",
			ctx:  liveCtx,
			err:  context.DeadlineExceeded,
			want: true,
		},
		{
			name: "plain error with live context",
			ctx:  liveCtx,
			err:  errors.New("connection reset"),
			want: false,
		},
		{
			name: "plain error surfaced after cancellation",
			ctx:  cancelledCtx,
			err:  errors.New("use of closed network connection"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCancellation(tt.ctx, tt.err); got != tt.want {
				t.Errorf("isCancellation() = %v, want %v", got, tt.want)
			}
		})
	}
}
