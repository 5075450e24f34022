package api

import (
	"net/http"
	"testing"

	"github.com/npezzotti/rtc-broker/internal/brokererr"
	"github.com/stretchr/testify/assert"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", brokererr.NewValidationError("bad %s", "input"), http.StatusBadRequest},
		{"unauthorized", brokererr.NewUnauthorized("nope"), http.StatusUnauthorized},
		{"forbidden", brokererr.NewForbidden("nope"), http.StatusForbidden},
		{"not found", brokererr.NewNotFound("nope"), http.StatusNotFound},
		{"conflict", brokererr.NewConflict("nope"), http.StatusConflict},
		{"rate limited", brokererr.NewRateLimited("slow down"), http.StatusTooManyRequests},
		{"unknown", assertError("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := translateError(c.err)
			assert.Equal(t, c.want, got.StatusCode)
		})
	}
}

type assertError string

func (e assertError) Error() string { return string(e) }
