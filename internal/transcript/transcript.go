// Package transcript writes a room's message history to a file.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/storage"
)

// Format selects the transcript encoding.
type Format string

const (
	// FormatText is one "[timestamp] sender: text" line per message.
	FormatText Format = "text"
	// FormatJSON is a single document holding the room and its messages.
	FormatJSON Format = "json"
)

// ParseFormat accepts "text", "txt" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", domain.NewValidationError("format", fmt.Sprintf("unknown transcript format %q", s))
	}
}

// Rooms resolves the room being exported.
type Rooms interface {
	JoinRoom(ctx context.Context, roomID string) (*domain.Room, error)
}

// History reads the messages being exported.
type History interface {
	FetchHistory(ctx context.Context, roomID string) ([]domain.Message, error)
}

// Exporter fetches a room's history and saves it to a store.
type Exporter struct {
	rooms   Rooms
	history History
	store   storage.Store
	logger  *slog.Logger
}

// NewExporter creates an Exporter. A nil logger uses slog.Default.
func NewExporter(rooms Rooms, history History, store storage.Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{rooms: rooms, history: history, store: store, logger: logger}
}

// Export writes the full history of roomID to path and returns the number of
// messages written.
func (e *Exporter) Export(ctx context.Context, roomID, path string, format Format) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, domain.NewValidationError("path", "must not be empty")
	}
	room, err := e.rooms.JoinRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	msgs, err := e.history.FetchHistory(ctx, room.ID)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := Write(&buf, room, msgs, format); err != nil {
		return 0, err
	}
	n, err := e.store.Save(ctx, path, &buf)
	if err != nil {
		return 0, fmt.Errorf("failed to save transcript: %w", err)
	}

	e.logger.InfoContext(ctx, "Transcript exported", "event", "transcript_exported", "room_id", room.ID, "path", path, "format", string(format), "messages", len(msgs), "bytes", n)
	return len(msgs), nil
}

type document struct {
	Room       *domain.Room     `json:"room"`
	ExportedAt time.Time        `json:"exported_at"`
	Messages   []domain.Message `json:"messages"`
}

// Write encodes room and msgs to w.
func Write(w io.Writer, room *domain.Room, msgs []domain.Message, format Format) error {
	switch format {
	case FormatJSON:
		if msgs == nil {
			msgs = []domain.Message{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(document{Room: room, ExportedAt: time.Now().UTC(), Messages: msgs})
	case FormatText, "":
		if _, err := fmt.Fprintf(w, "# %s (%s)\n", room.Name, room.ID); err != nil {
			return err
		}
		for _, m := range msgs {
			if _, err := io.WriteString(w, Line(m)+"\n"); err != nil {
				return err
			}
		}
		return nil
	default:
		return domain.NewValidationError("format", fmt.Sprintf("unknown transcript format %q", format))
	}
}

// Line renders one message for the text format. Continuation lines of a
// multi-line body are indented.
func Line(m domain.Message) string {
	body := strings.ReplaceAll(m.Body, "\n", "\n    ")
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.UTC().Format(time.DateTime), m.Sender, body)
}
