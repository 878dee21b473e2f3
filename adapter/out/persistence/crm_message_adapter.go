package persistence

import (
	"context"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// MessageRepository archives the raw messages of the latest fetch. It also
// acts as a MessageSource that replays the archive.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

var (
	_ out.MessageArchive = (*MessageRepository)(nil)
	_ out.MessageSource  = (*MessageRepository)(nil)
)

type messageRow struct {
	ExternalID string    `db:"external_id"`
	Sender     string    `db:"sender"`
	Subject    string    `db:"subject"`
	Body       string    `db:"body"`
	SentAt     time.Time `db:"sent_at"`
	Role       string    `db:"role"`
	Sentiment  string    `db:"sentiment"`
}

func (r *messageRow) toDomain() domain.RawMessage {
	return domain.RawMessage{
		ExternalID: r.ExternalID,
		Sender:     r.Sender,
		Subject:    r.Subject,
		Body:       r.Body,
		Timestamp:  r.SentAt.UTC(),
		Role:       domain.Role(r.Role),
		Sentiment:  r.Sentiment,
	}
}

func messageRowFrom(m domain.RawMessage) messageRow {
	return messageRow{
		ExternalID: m.ExternalID,
		Sender:     m.Sender,
		Subject:    m.Subject,
		Body:       m.Body,
		SentAt:     m.Timestamp,
		Role:       string(m.Role),
		Sentiment:  m.Sentiment,
	}
}

func (r *MessageRepository) Name() string {
	return "postgres"
}

func (r *MessageRepository) Fetch(ctx context.Context) ([]domain.RawMessage, error) {
	return r.ListMessages(ctx)
}

// SaveMessages replaces the archive with messages.
func (r *MessageRepository) SaveMessages(ctx context.Context, messages []domain.RawMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translate("begin message archive", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return translate("clear message archive", err)
	}

	if len(messages) > 0 {
		rows := make([]messageRow, len(messages))
		for i, m := range messages {
			rows[i] = messageRowFrom(m)
		}
		query := `
			INSERT INTO messages (external_id, sender, subject, body, sent_at, role, sentiment)
			VALUES (:external_id, :sender, :subject, :body, :sent_at, :role, :sentiment)`
		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return translate("insert messages", err)
		}
	}

	return translate("commit message archive", tx.Commit())
}

// ListMessages returns the archive in the order it was saved.
func (r *MessageRepository) ListMessages(ctx context.Context) ([]domain.RawMessage, error) {
	query := `
		SELECT external_id, sender, subject, body, sent_at, role, sentiment
		FROM messages
		ORDER BY seq`

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, translate("list messages", err)
	}

	messages := make([]domain.RawMessage, len(rows))
	for i := range rows {
		messages[i] = rows[i].toDomain()
	}
	return messages, nil
}
