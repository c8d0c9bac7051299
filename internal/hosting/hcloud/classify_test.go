package hcloud

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/stretchr/testify/assert"

	"github.com/kubeforge/kubeforge/internal/retry"
)

func apiError(code hcloud.ErrorCode) error {
	return hcloud.Error{Code: code, Message: string(code)}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want retry.Class
	}{
		{"rate limited", apiError(hcloud.ErrorCodeRateLimitExceeded), retry.Transient},
		{"locked", apiError(hcloud.ErrorCodeLocked), retry.Transient},
		{"conflict", apiError(hcloud.ErrorCodeConflict), retry.Transient},
		{"resource locked", apiError(hcloud.ErrorCodeResourceLocked), retry.Transient},
		{"unavailable", apiError(hcloud.ErrorCodeResourceUnavailable), retry.Transient},
		{"invalid input", apiError(hcloud.ErrorCodeInvalidInput), retry.Fatal},
		{"unauthorized", apiError(hcloud.ErrorCodeUnauthorized), retry.Fatal},
		{"not found", apiError(hcloud.ErrorCodeNotFound), retry.Fatal},
		{"plain network error", errors.New("connection reset by peer"), retry.Transient},
		{"wrapped api error", fmt.Errorf("creating server: %w", apiError(hcloud.ErrorCodeRateLimitExceeded)), retry.Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()
	assert.True(t, IsNotFound(apiError(hcloud.ErrorCodeNotFound)))
	assert.False(t, IsNotFound(apiError(hcloud.ErrorCodeConflict)))
	assert.False(t, IsNotFound(errors.New("gone")))
}
