package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), KindInternal},
		{"not found", NotFound("client %d not found", 7), KindNotFound},
		{"wrapped denial", fmt.Errorf("get client: %w", PermissionDenied("outside scope")), KindPermissionDenied},
		{"network", Network(errors.New("dial tcp"), "request failed"), KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorsIsMatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("user 4 not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrPermissionDenied))
	assert.True(t, IsNotFound(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(KindInternal, nil, "ignored"))

	cause := errors.New("connection reset")
	err := Wrap(KindNetwork, cause, "GET %s", "/api/Client/GetAll")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "GET /api/Client/GetAll: connection reset", err.Error())
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(Validation("bad input")))
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	kinds := []Kind{
		KindAuthentication,
		KindPermissionDenied,
		KindNotFound,
		KindValidation,
		KindConflict,
		KindNetwork,
		KindInternal,
	}
	for _, k := range kinds {
		t.Run(string(k), func(t *testing.T) {
			assert.Equal(t, k, KindForStatus(StatusForKind(k)))
		})
	}

	assert.Equal(t, http.StatusForbidden, HTTPStatus(PermissionDenied("no")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "", PublicMessage(nil))
	assert.Equal(t, "client not found", PublicMessage(NotFound("client not found")))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, "not_found", PublicMessage(ErrNotFound))
}
