package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestMessageRecordToDomain(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := messageRecord{
		ID:        &models.RecordID{Table: messageTable, ID: "01HX"},
		RoomID:    "abc",
		Sender:    "User42",
		Text:      "hello",
		CreatedAt: &models.CustomDateTime{Time: at},
	}

	msg := rec.toDomain()
	assert.Equal(t, "01HX", msg.ID)
	assert.Equal(t, "abc", msg.RoomID)
	assert.Equal(t, "User42", msg.Sender)
	assert.Equal(t, "hello", msg.Body)
	assert.True(t, at.Equal(msg.CreatedAt))
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "", recordKey(nil))
	assert.Equal(t, "r1", recordKey(&models.RecordID{Table: roomTable, ID: "r1"}))
	assert.Equal(t, "7", recordKey(&models.RecordID{Table: roomTable, ID: 7}))
}

func TestMessageFromNotification(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		result  any
		wantID  string
		wantErr bool
	}{
		{
			name: "record id and custom datetime",
			result: map[string]any{
				"id":         models.RecordID{Table: messageTable, ID: "m1"},
				"room_id":    "abc",
				"sender":     "Alice",
				"text":       "hi",
				"created_at": models.CustomDateTime{Time: at},
			},
			wantID: "m1",
		},
		{
			name: "string id and RFC3339 time",
			result: map[string]any{
				"id":         "message:⟨m2⟩",
				"room_id":    "abc",
				"sender":     "Alice",
				"text":       "hi",
				"created_at": at.Format(time.RFC3339Nano),
			},
			wantID: "m2",
		},
		{
			name:    "missing room",
			result:  map[string]any{"id": "message:m3"},
			wantErr: true,
		},
		{
			name:    "unexpected type",
			result:  42,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := messageFromNotification(tt.result)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnexpectedResult)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, msg.ID)
			assert.Equal(t, "abc", msg.RoomID)
			assert.True(t, at.Equal(msg.CreatedAt))
		})
	}
}
