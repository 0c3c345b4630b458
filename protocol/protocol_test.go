package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want CloseCode
	}{
		{"nil", nil, CloseNormal},
		{"validation", fmt.Errorf("%w: csn 4 <= 7", ErrValidation), CloseProtocolError},
		{"protocol", fmt.Errorf("%w: unexpected key", ErrProtocol), CloseProtocolError},
		{"crypto", ErrCrypto, CloseProtocolError},
		{"invalid key", fmt.Errorf("server key: %w", ErrInvalidKey), CloseInvalidKey},
		{"no task", ErrNoSharedTask, CloseNoSharedTask},
		{"deadline", context.DeadlineExceeded, CloseTimeout},
		{"overflow", ErrOverflow, CloseInternalError},
		{"other", errors.New("boom"), CloseInternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CloseCodeFor(tc.err))
		})
	}
}

func TestCloseCodeString(t *testing.T) {
	assert.Equal(t, "protocol error (3001)", CloseProtocolError.String())
	assert.Equal(t, "unknown close code (4242)", CloseCode(4242).String())
	assert.True(t, CloseTimeout.Known())
	assert.False(t, CloseCode(4242).Known())
}

func TestDropReasons(t *testing.T) {
	assert.True(t, CloseDroppedByInitiator.IsDropReason())
	assert.True(t, CloseInitiatorCouldNotDecrypt.IsDropReason())
	assert.False(t, CloseNormal.IsDropReason())
	assert.False(t, CloseNoSharedTask.IsDropReason())
}

func TestIsResponderID(t *testing.T) {
	assert.False(t, IsResponderID(IDServer))
	assert.False(t, IsResponderID(IDInitiator))
	assert.True(t, IsResponderID(IDResponderMin))
	assert.True(t, IsResponderID(IDResponderMax))
}
