package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{
			name:          "unauthorized",
			err:           errors.New("401 Unauthorized"),
			wantType:      ErrorTypeAuth,
			wantRetryable: false,
		},
		{
			name:          "invalid api key",
			err:           errors.New("invalid api key provided"),
			wantType:      ErrorTypeAuth,
			wantRetryable: false,
		},
		{
			name:          "model missing",
			err:           errors.New("the model 'gpt-5-mini' does not exist"),
			wantType:      ErrorTypeModel,
			wantRetryable: false,
		},
		{
			name:          "endpoint missing",
			err:           errors.New("404 page not found"),
			wantType:      ErrorTypeEndpoint,
			wantRetryable: false,
		},
		{
			name:          "connection refused",
			err:           errors.New("dial tcp 127.0.0.1:8000: connection refused"),
			wantType:      ErrorTypeEndpoint,
			wantRetryable: true,
		},
		{
			name:          "deadline exceeded",
			err:           errors.New("context deadline exceeded"),
			wantType:      ErrorTypeEndpoint,
			wantRetryable: true,
		},
		{
			name:          "rate limited",
			err:           errors.New("429 Too Many Requests: rate limit exceeded"),
			wantType:      ErrorTypeEndpoint,
			wantRetryable: true,
		},
		{
			name:          "server error",
			err:           errors.New("503 Service Unavailable"),
			wantType:      ErrorTypeEndpoint,
			wantRetryable: true,
		},
		{
			name:          "unknown",
			err:           errors.New("something odd happened"),
			wantType:      ErrorTypeUnknown,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Type != tt.wantType {
				t.Errorf("type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := ClassifyError(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeParse, "bad payload", false, errors.New("unexpected token"))
	wrapped := fmt.Errorf("stage failed: %w", orig)

	got := ClassifyError(wrapped)
	if got != orig {
		t.Errorf("expected existing *Error to pass through, got %v", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewError(ErrorTypeEndpoint, "server error", true, nil)) {
		t.Error("expected retryable")
	}
	if IsRetryable(NewError(ErrorTypeAuth, "auth failed", false, nil)) {
		t.Error("expected not retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("plain errors are not retryable")
	}
}
