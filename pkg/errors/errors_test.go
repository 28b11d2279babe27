package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrSchoolNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("urn 42: %w", ErrSchoolNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"dataset", ErrDatasetUnavailable, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"app error wins", New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad limit"), http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrSchoolNotFound, http.StatusNotFound, "no school with urn %s", "100000")
	assert.True(t, errors.Is(err, ErrSchoolNotFound))
	assert.Equal(t, "school not found: no school with urn 100000", err.Error())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "bad limit", Message(New(ErrInvalidInput, 400, "bad limit")))
	assert.Equal(t, "school not found", Message(fmt.Errorf("lookup: %w", ErrSchoolNotFound)))
	assert.Equal(t, "internal error", Message(errors.New("driver exploded")))
}
