package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestCategorizePassesThroughCategorized(t *testing.T) {
	err := NewUpstreamUnavailableError("dashboard", nil)

	catErr := Categorize(err)
	if catErr != err {
		t.Error("Categorize() rewrapped an already categorized error")
	}
	if !IsUpstream(err) {
		t.Error("IsUpstream() = false for an upstream error")
	}
	if GetHTTPStatusCode(err) != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", GetHTTPStatusCode(err))
	}
}

func TestCategorizeWrapsUnknownErrors(t *testing.T) {
	err := stderrors.New("boom")

	catErr := Categorize(err)
	if catErr.Category != CategorySystem {
		t.Errorf("category = %v, want system", catErr.Category)
	}
	if catErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", catErr.StatusCode)
	}
	if catErr.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", catErr.Code)
	}
}

func TestPartialFetchIsDegradedSuccess(t *testing.T) {
	err := NewPartialFetchError("chain rpc", 3, nil)

	if !IsPartialFetch(err) {
		t.Error("IsPartialFetch() = false for a partial fetch")
	}
	if IsUpstream(err) {
		t.Error("IsUpstream() = true for a partial fetch")
	}
	if GetHTTPStatusCode(err) != http.StatusOK {
		t.Errorf("status = %d, want 200; a partial fetch never fails a cycle on its own", GetHTTPStatusCode(err))
	}
	if IsRetryable(err) {
		t.Error("IsRetryable() = true for a partial fetch")
	}
	if err.Details["failed"] != 3 {
		t.Errorf("failed detail = %v, want 3", err.Details["failed"])
	}
}

func TestRetryableCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"upstream", NewUpstreamUnavailableError("dashboard", nil), true},
		{"timeout", NewUpstreamTimeoutError("chain rpc"), true},
		{"database", NewDatabaseError("insert block", nil), true},
		{"cache", NewCacheError("store result", nil), true},
		{"unauthorized", NewUnauthorizedError("bad token"), false},
		{"validation", NewInvalidParameterError("limit", "must be positive"), false},
		{"not found", NewNotFoundError("node", "abc"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
