// Package sentiment tags incoming messages with a sentiment label before
// classification. The classifier itself only propagates the label.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/core/service/lexicon"
	"crm_server/pkg/logger"
)

// KeywordTagger labels text with the lexicon's sentiment keyword groups.
type KeywordTagger struct {
	lex *lexicon.Lexicon
}

// NewKeywordTagger creates a keyword tagger.
func NewKeywordTagger(lex *lexicon.Lexicon) *KeywordTagger {
	return &KeywordTagger{lex: lex}
}

// Tag implements out.SentimentTagger. It never fails.
func (t *KeywordTagger) Tag(_ context.Context, text string) (string, error) {
	return t.lex.SentimentFor(strings.ToLower(text)), nil
}

// Fallback tries Primary and uses Secondary when it fails.
type Fallback struct {
	Primary   out.SentimentTagger
	Secondary out.SentimentTagger
}

// Tag implements out.SentimentTagger.
func (f Fallback) Tag(ctx context.Context, text string) (string, error) {
	label, err := f.Primary.Tag(ctx, text)
	if err == nil {
		return label, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	logger.WithError(err).Debug("[Sentiment.Fallback] primary tagger failed")
	return f.Secondary.Tag(ctx, text)
}

// TaggingSource wraps a message source and fills in missing sentiment.
// Labels supplied by the source are kept.
type TaggingSource struct {
	source out.MessageSource
	tagger out.SentimentTagger
}

// NewTaggingSource creates a tagging decorator around source.
func NewTaggingSource(source out.MessageSource, tagger out.SentimentTagger) *TaggingSource {
	return &TaggingSource{source: source, tagger: tagger}
}

// Name implements out.MessageSource.
func (s *TaggingSource) Name() string {
	return s.source.Name()
}

// Fetch implements out.MessageSource. A tagging failure leaves the label
// empty, which downstream reads as Neutral.
func (s *TaggingSource) Fetch(ctx context.Context) ([]domain.RawMessage, error) {
	raws, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	tagged := make([]domain.RawMessage, len(raws))
	for i, raw := range raws {
		if raw.Sentiment == "" {
			label, err := s.tagger.Tag(ctx, strings.TrimSpace(raw.Subject+"\n"+raw.Body))
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.WithError(err).Warn("[TaggingSource.Fetch] message %d left untagged", i)
			}
			raw.Sentiment = label
		}
		tagged[i] = raw
	}
	return tagged, nil
}

var errUnknownLabel = errors.New("unknown sentiment label")

// normalizeLabel maps free-form model output onto the three labels.
func normalizeLabel(s string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(lower, "positive"):
		return domain.SentimentPositive, nil
	case strings.HasPrefix(lower, "negative"):
		return domain.SentimentNegative, nil
	case strings.HasPrefix(lower, "neutral"):
		return domain.SentimentNeutral, nil
	}
	return "", fmt.Errorf("%w: %q", errUnknownLabel, s)
}

var (
	_ out.SentimentTagger = (*KeywordTagger)(nil)
	_ out.SentimentTagger = Fallback{}
	_ out.MessageSource   = (*TaggingSource)(nil)
)
