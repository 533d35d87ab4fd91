package errutil

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("sentinel")

func TestHelpersKeepWrappedError(t *testing.T) {
	err := Conflict("insufficient available balance", errSentinel)

	require.True(t, errors.Is(err, errSentinel))
	require.Equal(t, StatusConflict, StatusOf(err))
	require.Equal(t, "[CONFLICT] insufficient available balance: sentinel", err.Error())
}

func TestStatusOfUnknown(t *testing.T) {
	require.Equal(t, StatusUnknown, StatusOf(errors.New("plain")))
	require.False(t, Is(nil, StatusNotFound))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusValidationFailed:     http.StatusBadRequest,
		StatusNotFound:             http.StatusNotFound,
		StatusConflict:             http.StatusConflict,
		StatusServiceUnavailable:   http.StatusServiceUnavailable,
		StatusInternal:             http.StatusInternalServerError,
		StatusUnsupportedMediaType: http.StatusUnsupportedMediaType,
		StatusNotImplemented:       http.StatusNotImplemented,
		StatusBadGateway:           http.StatusBadGateway,
		StatusGatewayTimeout:       http.StatusGatewayTimeout,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
	require.True(t, StatusServiceUnavailable.Retryable())
	require.False(t, StatusConflict.Retryable())
}

func TestWithDetails(t *testing.T) {
	err := ValidationFailed("invalid request", nil, WithDetails(Detail{Field: "amount", Message: "must be an integer"}))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Nil(t, be.Unwrap())
	require.Len(t, be.Details, 1)
	body := be.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, StatusValidationFailed, body["code"])
	require.Equal(t, be.Details, body["details"])
}
