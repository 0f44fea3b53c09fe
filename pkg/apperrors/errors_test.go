package apperrors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewInvalidInputError(StageBinarize, "image is empty", nil)
	assert.Equal(t, "invalid_input [binarize]: image is empty", err.Error())

	wrapped := NewImageLoadError("cannot decode scan.tif", io.ErrUnexpectedEOF)
	assert.Contains(t, wrapped.Error(), "image_load [load]")
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
}

func TestIsAndStage(t *testing.T) {
	base := NewInsufficientComponentsError(StageExtract, "found 2 components, need 3", nil)
	err := fmt.Errorf("processing anterior view: %w", base)

	assert.True(t, Is(err, KindInsufficientComponents))
	assert.False(t, Is(err, KindInvalidInput))
	assert.Equal(t, StageExtract, StageOf(err))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Same(t, base, appErr)

	assert.False(t, Is(errors.New("plain"), KindInvalidInput))
	assert.Equal(t, "", StageOf(errors.New("plain")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", NewInvalidInputError(StageBinarize, "x", nil), http.StatusBadRequest},
		{"projection", NewInvalidProjectionError("x", nil), http.StatusBadRequest},
		{"image load", NewImageLoadError("x", nil), http.StatusBadRequest},
		{"components", NewInsufficientComponentsError(StageExtract, "x", nil), http.StatusUnprocessableEntity},
		{"precondition", NewPreconditionError(StageExtract, "x", nil), http.StatusUnprocessableEntity},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}
