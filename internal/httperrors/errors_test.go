package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Category
		retryable bool
	}{
		{name: "unauthorized", err: &StatusError{Code: 401}, want: Unauthorized},
		{name: "rate limited", err: fmt.Errorf("call: %w", &StatusError{Code: 429}), want: RateLimited, retryable: true},
		{name: "server", err: &StatusError{Code: 503, Body: "upstream"}, want: Server, retryable: true},
		{name: "bad request", err: &StatusError{Code: 400}, want: Generic},
		{name: "deadline", err: context.DeadlineExceeded, want: Timeout, retryable: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "openrouter.ai"}, want: DNS},
		{
			name:      "refused",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			want:      ConnectionRefused,
			retryable: true,
		},
		{name: "tls", err: errors.New("x509: certificate signed by unknown authority"), want: TLS},
		{name: "other", err: errors.New("boom"), want: Generic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
		})
	}
}

func TestDescribe(t *testing.T) {
	out := Describe(&StatusError{Code: 401}, "asking the model")
	assert.Contains(t, out, "while asking the model")
	assert.Contains(t, out, "sqlgate login")

	out = Describe(&StatusError{Code: 429}, "asking the model")
	assert.Contains(t, out, "requests_per_second")
}

func TestExtractHostFromURL(t *testing.T) {
	assert.Equal(t, "openrouter.ai", ExtractHostFromURL("https://openrouter.ai/api/v1"))
	assert.Equal(t, "server", ExtractHostFromURL("::bad"))
}
