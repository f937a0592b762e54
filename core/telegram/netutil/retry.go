package netutil

import (
	"errors"
	"net"
	"net/url"
)

// ShouldRetry reports whether a network error is transient enough to retry.
// It walks the wrapped-error chain looking for dial and timeout failures
// produced by net/http while contacting the Telegram API; anything else
// (including protocol-level rejections) is treated as permanent.
func ShouldRetry(err error) bool {
	for err != nil {
		switch e := err.(type) {
		case *url.Error:
			if e.Timeout() {
				return true
			}
			err = e.Err
			continue
		case *net.OpError:
			if e.Timeout() || e.Op == "dial" {
				return true
			}
			err = e.Err
			continue
		case net.Error:
			if e.Timeout() || e.Temporary() {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}
