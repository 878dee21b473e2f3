package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"crm_server/core/domain"
	"crm_server/core/service/intake"
	"crm_server/pkg/logger"

	"github.com/goccy/go-json"
)

// MailArchive stores raw messages as a JSON array. It doubles as a
// MessageSource that replays the archived messages.
type MailArchive struct {
	path string
	mu   sync.Mutex
}

// NewMailArchive creates an archive backed by path.
func NewMailArchive(path string) *MailArchive {
	return &MailArchive{path: path}
}

func (a *MailArchive) Name() string {
	return "file"
}

func (a *MailArchive) Fetch(ctx context.Context) ([]domain.RawMessage, error) {
	return a.ListMessages(ctx)
}

func (a *MailArchive) SaveMessages(ctx context.Context, messages []domain.RawMessage) error {
	if messages == nil {
		messages = []domain.RawMessage{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mail archive: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return writeAtomic(a.path, data)
}

// ListMessages returns the archived messages. Invalid records are skipped
// and logged; a missing file yields no messages.
func (a *MailArchive) ListMessages(ctx context.Context) ([]domain.RawMessage, error) {
	a.mu.Lock()
	data, err := os.ReadFile(a.path)
	a.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return []domain.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mail archive %s: %w", a.path, err)
	}

	batch, err := intake.DecodeMessages(data)
	if err != nil {
		return nil, fmt.Errorf("decode mail archive %s: %w", a.path, err)
	}
	for _, rej := range batch.Rejected {
		logger.WithField("path", a.path).WithError(rej).Warn("[MailArchive] skipping message record")
	}
	return batch.Messages, nil
}
