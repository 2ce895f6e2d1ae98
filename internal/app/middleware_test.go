package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storebooks/storebooks/internal/accounting"
	"github.com/storebooks/storebooks/internal/shared"
)

func TestTenantScopeInjectsScope(t *testing.T) {
	var captured shared.TenantScope
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := shared.ScopeFromContext(r.Context())
		require.True(t, ok)
		captured = scope
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set("X-Client-ID", "7")
	req.Header.Set("X-Store-ID", "3")

	rr := httptest.NewRecorder()
	TenantScope()(next).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(7), captured.ClientID)
	assert.Equal(t, int64(3), captured.StoreID)
}

func TestTenantScopeRejectsMissingHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run")
	})

	cases := map[string]map[string]string{
		"no headers":        {},
		"missing store":     {"X-Client-ID": "7"},
		"non-numeric":       {"X-Client-ID": "abc", "X-Store-ID": "3"},
		"zero client":       {"X-Client-ID": "0", "X-Store-ID": "3"},
		"negative store id": {"X-Client-ID": "7", "X-Store-ID": "-1"},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			TenantScope()(next).ServeHTTP(rr, req)

			require.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "Missing Tenant")
		})
	}
}

func TestConfigSignConvention(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, accounting.SignUniform, cfg.SignConvention())

	cfg.StrictSigns = true
	assert.Equal(t, accounting.SignStrict, cfg.SignConvention())
}
