package postgres

// notifyChannel is the LISTEN/NOTIFY channel carrying inserted messages.
const notifyChannel = "chat_messages"

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL REFERENCES rooms (id),
	sender     TEXT NOT NULL CHECK (sender <> ''),
	text       TEXT NOT NULL CHECK (text <> ''),
	created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at, id);

CREATE OR REPLACE FUNCTION notify_chat_message() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + notifyChannel + `', row_to_json(NEW)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS messages_notify ON messages;
CREATE TRIGGER messages_notify AFTER INSERT ON messages
	FOR EACH ROW EXECUTE FUNCTION notify_chat_message();
`
