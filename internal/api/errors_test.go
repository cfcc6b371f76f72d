// ABOUTME: Tests for error to HTTP status mapping
// ABOUTME: Wrapped errors must map the same as bare ones

package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/harper/nexifeed/internal/models"
	"github.com/harper/nexifeed/internal/parse"
	"github.com/harper/nexifeed/internal/storage"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &models.ValidationError{Field: "url", Reason: "empty"}, http.StatusBadRequest},
		{"not found", fmt.Errorf("feed x: %w", storage.ErrNotFound), http.StatusNotFound},
		{"fetch", fmt.Errorf("ingest u: %w", &parse.FetchError{URL: "u", Err: errors.New("timeout")}), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
