package out

import (
	"context"

	"crm_server/core/domain"
)

// MessageSource yields raw messages with the role already tagged.
type MessageSource interface {
	// Name identifies the source in logs and status output.
	Name() string
	Fetch(ctx context.Context) ([]domain.RawMessage, error)
}

// MessageArchive keeps the raw messages of the latest fetch.
type MessageArchive interface {
	SaveMessages(ctx context.Context, messages []domain.RawMessage) error
	ListMessages(ctx context.Context) ([]domain.RawMessage, error)
}

// SentimentTagger labels text as Positive, Neutral or Negative.
type SentimentTagger interface {
	Tag(ctx context.Context, text string) (string, error)
}
