package hcloud

import (
	"errors"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/kubeforge/kubeforge/internal/retry"
)

// Classify implements retry.Classifier for the Hetzner API. Rate
// limits, locked resources and mid-flight conflicts resolve by
// waiting; rejected input and auth failures never do. Errors that are
// not API responses (timeouts, resets) are treated as transient.
func Classify(err error) retry.Class {
	var apiErr hcloud.Error
	if !errors.As(err, &apiErr) {
		return retry.Transient
	}

	switch apiErr.Code {
	case hcloud.ErrorCodeRateLimitExceeded,
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
		hcloud.ErrorCodeResourceLocked,
		hcloud.ErrorCodeResourceUnavailable:
		return retry.Transient
	default:
		return retry.Fatal
	}
}

// IsNotFound reports whether err is the API's not-found response.
func IsNotFound(err error) bool {
	var apiErr hcloud.Error
	return errors.As(err, &apiErr) && apiErr.Code == hcloud.ErrorCodeNotFound
}
