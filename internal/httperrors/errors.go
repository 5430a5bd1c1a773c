// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors classifies failures talking to the model API and turns
// them into user-friendly messages.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// Category is a coarse class of network or HTTP failure.
type Category int

const (
	Generic Category = iota
	Timeout
	DNS
	ConnectionRefused
	TLS
	Server
	Unauthorized
	RateLimited
)

func (c Category) String() string {
	switch c {
	case Timeout:
		return "timeout"
	case DNS:
		return "dns"
	case ConnectionRefused:
		return "connection_refused"
	case TLS:
		return "tls"
	case Server:
		return "server"
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	}
	return "generic"
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	// Body is a short excerpt of the response body.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Classify returns the category of err.
func Classify(err error) Category {
	if err == nil {
		return Generic
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 401 || se.Code == 403:
			return Unauthorized
		case se.Code == 429:
			return RateLimited
		case se.Code >= 500:
			return Server
		}
		return Generic
	}

	switch {
	case isTimeoutError(err):
		return Timeout
	case isDNSError(err):
		return DNS
	case isConnectionRefusedError(err):
		return ConnectionRefused
	case isSSLError(err):
		return TLS
	case isServerError(err.Error()):
		return Server
	}
	return Generic
}

// Retryable reports whether a request failing with err is worth repeating.
func Retryable(err error) bool {
	switch Classify(err) {
	case RateLimited, Server, Timeout, ConnectionRefused:
		return true
	}
	return false
}

// Describe renders a user-friendly explanation of err.
func Describe(err error, context string) string {
	var b strings.Builder
	line := func(format string, a ...any) { fmt.Fprintf(&b, format+"\n", a...) }

	switch Classify(err) {
	case Timeout:
		line("⏱️  Connection timeout while %s", context)
		line("")
		line("The model API took too long to respond. This could mean:")
		line("  • Slow internet connection")
		line("  • The provider is under heavy load")
		line("")
		line("Please try again in a few moments.")
	case DNS:
		line("🌐 Cannot resolve server address while %s", context)
		line("")
		line("Please check your internet connection and DNS settings.")
	case ConnectionRefused:
		line("🚫 Connection refused while %s", context)
		line("")
		line("Check model.base_url in your config and any proxy settings.")
	case TLS:
		line("🔒 Secure connection failed while %s", context)
		line("")
		line("Try:")
		line("  • Check your system date and time")
		line("  • Verify network proxy settings")
	case Server:
		line("⚠️  Server error while %s", context)
		line("")
		line("The model provider reported an internal error. Please try again in a few minutes.")
	case Unauthorized:
		line("🔑 The model API rejected your key while %s", context)
		line("")
		line("Run 'sqlgate login' to store a valid key, or set OPENROUTER_API_KEY.")
	case RateLimited:
		line("⏳ Rate limited while %s", context)
		line("")
		line("Lower model.requests_per_second or wait before asking again.")
	default:
		line("❌ Cannot reach the model API while %s", context)
		line("")
		line("Please check your internet connection and firewall settings.")
		if d := err.Error(); d != "" {
			if len(d) > 100 {
				d = d[:100] + "..."
			}
			b.WriteString(pterm.Gray("Technical details: "+d) + "\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isDNSError checks if the error is a DNS resolution error.
func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// isConnectionRefusedError checks if the error is a connection refused error.
func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// isSSLError checks if the error is an SSL/TLS error.
func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// isServerError checks if the error text indicates a server-side problem.
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	return strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout")
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
