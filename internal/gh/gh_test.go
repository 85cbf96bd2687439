package gh

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitServer(t *testing.T, remaining int, wantAuth string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rate_limit" {
			http.NotFound(w, r)
			return
		}
		if wantAuth != "" {
			assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"resources":{"core":{"remaining":%d,"limit":5000}}}`, remaining)
	}))
}

func TestRemaining(t *testing.T) {
	srv := rateLimitServer(t, 4321, "Bearer tok")
	defer srv.Close()

	client := NewClient("tok", WithBaseURL(srv.URL))
	remaining, err := client.Remaining(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4321, remaining)
}

func TestOffQuota(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		threshold int
		off       bool
	}{
		{"plenty left", 4000, 50, false},
		{"exactly at threshold", 50, 50, false},
		{"below threshold", 49, 50, true},
		{"exhausted", 0, 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rateLimitServer(t, tt.remaining, "")
			defer srv.Close()

			client := NewClient("", WithBaseURL(srv.URL))
			off, err := client.OffQuota(context.Background(), tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.off, off)
		})
	}
}

func TestRemainingPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	_, err := client.Remaining(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
