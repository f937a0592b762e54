package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

// timeoutErr satisfies net.Error with a configurable timeout flag.
type timeoutErr struct {
	timeout bool
}

func (e *timeoutErr) Error() string   { return "stub net error" }
func (e *timeoutErr) Timeout() bool   { return e.timeout }
func (e *timeoutErr) Temporary() bool { return false }

func TestShouldRetryNil(t *testing.T) {
	if ShouldRetry(nil) {
		t.Fatal("nil error must not retry")
	}
}

func TestShouldRetryDial(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if !ShouldRetry(err) {
		t.Fatal("dial failure must retry")
	}
	err = &net.OpError{Op: "read", Err: errors.New("connection reset")}
	if ShouldRetry(err) {
		t.Fatal("read failure must not retry")
	}
}

func TestShouldRetryTimeouts(t *testing.T) {
	if !ShouldRetry(&timeoutErr{timeout: true}) {
		t.Fatal("timeout must retry")
	}
	if ShouldRetry(&timeoutErr{}) {
		t.Fatal("non-timeout net error must not retry")
	}
}

func TestShouldRetryUnwrapsURLError(t *testing.T) {
	inner := &net.OpError{Op: "dial", Err: errors.New("refused")}
	err := &url.Error{Op: "Post", URL: "https://example.invalid", Err: inner}
	if !ShouldRetry(err) {
		t.Fatal("dial failure inside url.Error must retry")
	}

	wrapped := fmt.Errorf("call failed: %w", &timeoutErr{timeout: true})
	if !ShouldRetry(wrapped) {
		t.Fatal("timeout behind fmt wrapping must retry")
	}
}

func TestShouldRetryPlainErrors(t *testing.T) {
	if ShouldRetry(errors.New("boom")) {
		t.Fatal("plain error must not retry")
	}
}
