package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeRoomKeyMissing, http.StatusBadRequest},
		{ErrCodeInvalidMessage, http.StatusBadRequest},
		{ErrCodeAlreadyInRoom, http.StatusConflict},
		{ErrCodePeerNotConnected, http.StatusNotFound},
		{ErrCodeNegotiationTimeout, http.StatusGatewayTimeout},
		{ErrCodeTransportFailed, http.StatusBadGateway},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, NewAppError(tt.code, "x").HTTPStatus)
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("socket closed")
	err := WrapError(ErrCodeTransportFailed, cause).WithDetails("peer", "abc")

	assert.Contains(t, err.Error(), "TRANSPORT_FAILED")
	assert.Contains(t, err.Error(), "socket closed")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "abc", err.Details["peer"])
}

func TestAsAppError_Wrapped(t *testing.T) {
	inner := NewAppErrorf(ErrCodeRoomKeyMissing, "room %q", "")
	wrapped := fmt.Errorf("join: %w", inner)

	got, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeRoomKeyMissing, got.Code)
	assert.True(t, IsAppError(wrapped))
	assert.False(t, IsAppError(stderrors.New("plain")))
}
