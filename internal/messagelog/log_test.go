package messagelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMessages records calls and returns canned results.
type stubMessages struct {
	list      []domain.Message
	listErr   error
	insertErr error
	inserted  []domain.NewMessage
}

func (s *stubMessages) ListMessages(_ context.Context, _ string) ([]domain.Message, error) {
	return s.list, s.listErr
}

func (s *stubMessages) InsertMessage(_ context.Context, m domain.NewMessage) (*domain.Message, error) {
	s.inserted = append(s.inserted, m)
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	return &domain.Message{ID: "m1", RoomID: m.RoomID, Sender: m.Sender, Body: m.Body, CreatedAt: time.Now()}, nil
}

func TestFetchHistoryOrdersAscendingAndStable(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubMessages{list: []domain.Message{
		{ID: "c", CreatedAt: t0.Add(2 * time.Second)},
		{ID: "a1", CreatedAt: t0},
		{ID: "a2", CreatedAt: t0},
		{ID: "b", CreatedAt: t0.Add(time.Second)},
	}}
	log := New(stub, nil)

	history, err := log.FetchHistory(context.Background(), "room")
	require.NoError(t, err)

	ids := make([]string, 0, len(history))
	for _, m := range history {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, ids)
}

func TestFetchHistoryEmpty(t *testing.T) {
	log := New(&stubMessages{}, nil)
	history, err := log.FetchHistory(context.Background(), "room")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestFetchHistoryErrors(t *testing.T) {
	_, err := New(&stubMessages{}, nil).FetchHistory(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = New(&stubMessages{listErr: errors.New("socket closed")}, nil).FetchHistory(context.Background(), "room")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestAppendTrimsAndStores(t *testing.T) {
	stub := &stubMessages{}
	log := New(stub, nil)

	msg, err := log.Append(context.Background(), "room", " Alice ", "  hello world \n")
	require.NoError(t, err)
	assert.Equal(t, "hello world", msg.Body)
	assert.Equal(t, "Alice", msg.Sender)
	require.Len(t, stub.inserted, 1)
	assert.Equal(t, "hello world", stub.inserted[0].Body)
}

func TestAppendRejectsBlankBodyWithoutBackendCall(t *testing.T) {
	stub := &stubMessages{}
	log := New(stub, nil)

	for _, body := range []string{"", "   ", "\t\n"} {
		_, err := log.Append(context.Background(), "room", "Alice", body)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "text", verr.Field)
	}
	assert.Empty(t, stub.inserted)
}

func TestAppendClassifiesBackendErrors(t *testing.T) {
	rejected := &stubMessages{insertErr: domain.ErrWriteRejected}
	_, err := New(rejected, nil).Append(context.Background(), "room", "Alice", "hi")
	assert.ErrorIs(t, err, domain.ErrWriteRejected)

	down := &stubMessages{insertErr: errors.New("i/o timeout")}
	_, err = New(down, nil).Append(context.Background(), "room", "Alice", "hi")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestAppendLongBody(t *testing.T) {
	stub := &stubMessages{}
	body := make([]byte, 1<<20)
	for i := range body {
		body[i] = 'x'
	}
	msg, err := New(stub, nil).Append(context.Background(), "room", "Alice", string(body))
	require.NoError(t, err)
	assert.Len(t, msg.Body, 1<<20)
}
