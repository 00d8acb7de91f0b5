package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDBError(t *testing.T) {
	cause := errors.New("parse error")
	err := NewDBError(fmt.Errorf("%w: %w", ErrQueryFailed, cause), "surrealdb").
		WithQuery("SELECT * FROM message").
		WithParams(map[string]any{"room_id": "secret-room"})

	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SELECT * FROM message")
	assert.Contains(t, err.Error(), "room_id")
	assert.NotContains(t, err.Error(), "secret-room")
	assert.Equal(t, "SELECT * FROM message", err.Query())
}

func TestClassifyRead(t *testing.T) {
	assert.NoError(t, classifyRead(nil))
	assert.ErrorIs(t, classifyRead(errors.New("boom")), domain.ErrBackendUnavailable)
	assert.ErrorIs(t, classifyRead(context.Canceled), context.Canceled)
	assert.False(t, errors.Is(classifyRead(context.Canceled), domain.ErrBackendUnavailable))

	notFound := fmt.Errorf("%w: x", domain.ErrRoomNotFound)
	assert.Same(t, notFound, classifyRead(notFound))
}

func TestClassifyWrite(t *testing.T) {
	assert.NoError(t, classifyWrite(nil))

	rejected := classifyWrite(NewDBError(errors.New("room does not exist"), "surrealdb"))
	assert.ErrorIs(t, rejected, domain.ErrWriteRejected)

	down := classifyWrite(NewDBError(ErrNotConnected, "database not connected"))
	assert.ErrorIs(t, down, domain.ErrBackendUnavailable)

	refused := classifyWrite(errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, refused, domain.ErrBackendUnavailable)
}
