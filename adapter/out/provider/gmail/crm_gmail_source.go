// Package gmail ingests a mailbox through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/pkg/logger"

	"github.com/go-pkgz/pool"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	defaultMaxMessages = 200
	fetchConcurrency   = 5
	pageSize           = 100
)

// Config configures the Gmail source. RefreshToken is a long-lived offline
// token for the mailbox owner.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Mailbox      string // owner address; looked up from the profile when empty
	Query        string // Gmail search query, e.g. "newer_than:30d"
	MaxMessages  int
}

// Source implements out.MessageSource for one Gmail mailbox. Messages sent
// from the mailbox itself are tagged internal, everything else customer.
type Source struct {
	service *gmail.Service
	mailbox string
	query   string
	max     int
	cb      *gobreaker.CircuitBreaker
}

// NewSource creates a Gmail source using an offline refresh token.
func NewSource(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.RefreshToken == "" {
		return nil, errors.New("gmail refresh token is required")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	client := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	s := &Source{
		service: service,
		mailbox: strings.ToLower(strings.TrimSpace(cfg.Mailbox)),
		query:   cfg.Query,
		max:     cfg.MaxMessages,
		cb:      gobreaker.NewCircuitBreaker(breakerSettings()),
	}
	if s.max <= 0 {
		s.max = defaultMaxMessages
	}

	if s.mailbox == "" {
		profile, err := s.service.Users.GetProfile("me").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get user profile: %w", err)
		}
		s.mailbox = strings.ToLower(profile.EmailAddress)
	}
	return s, nil
}

func breakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}
}

// Name implements out.MessageSource.
func (s *Source) Name() string {
	return "gmail"
}

// Fetch lists up to MaxMessages messages matching the query and returns
// them oldest first. Messages that fail to load are skipped and logged.
func (s *Source) Fetch(ctx context.Context) ([]domain.RawMessage, error) {
	ids, err := s.listIDs(ctx)
	if err != nil {
		return nil, err
	}

	results, err := fetchAll(ctx, ids, s.getMessage)
	if err != nil {
		return nil, err
	}

	raws := make([]domain.RawMessage, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		if results[i] != nil {
			raws = append(raws, toRawMessage(results[i], s.mailbox))
		}
	}
	return raws, nil
}

// fetchAll loads ids on a bounded worker group. results[i] is nil when
// ids[i] failed to load; only cancellation fails the whole fetch.
func fetchAll(ctx context.Context, ids []string, get func(context.Context, string) (*gmail.Message, error)) ([]*gmail.Message, error) {
	results := make([]*gmail.Message, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	group := pool.New[int](fetchConcurrency, pool.WorkerFunc[int](func(ctx context.Context, idx int) error {
		msg, err := get(ctx, ids[idx])
		if err != nil {
			logger.WithError(err).Warn("[GmailSource.Fetch] skipping message %s", ids[idx])
			return nil
		}
		results[idx] = msg
		return nil
	})).WithContinueOnError()

	if err := group.Go(ctx); err != nil {
		return nil, err
	}
	for i := range ids {
		group.Submit(i)
	}
	if err := group.Close(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return results, nil
}

func (s *Source) listIDs(ctx context.Context) ([]string, error) {
	var ids []string
	pageToken := ""
	for len(ids) < s.max {
		req := s.service.Users.Messages.List("me").MaxResults(int64(min(pageSize, s.max-len(ids))))
		if s.query != "" {
			req = req.Q(s.query)
		}
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := s.execute(func() (any, error) { return req.Context(ctx).Do() })
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		page := resp.(*gmail.ListMessagesResponse)
		for _, m := range page.Messages {
			ids = append(ids, m.Id)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return ids, nil
}

func (s *Source) getMessage(ctx context.Context, id string) (*gmail.Message, error) {
	resp, err := s.execute(func() (any, error) {
		return s.service.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return resp.(*gmail.Message), nil
}

func (s *Source) execute(fn func() (any, error)) (any, error) {
	return s.cb.Execute(fn)
}

func toRawMessage(msg *gmail.Message, mailbox string) domain.RawMessage {
	raw := domain.RawMessage{
		ExternalID: msg.Id,
		Timestamp:  time.UnixMilli(msg.InternalDate).UTC(),
		Role:       domain.RoleCustomer,
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				raw.Sender = header.Value
			case "Subject":
				raw.Subject = header.Value
			}
		}
		raw.Body = plainBody(msg.Payload)
	}
	if raw.Body == "" {
		raw.Body = msg.Snippet
	}

	if addr, err := mail.ParseAddress(raw.Sender); err == nil && strings.EqualFold(addr.Address, mailbox) {
		raw.Role = domain.RoleInternal
	}
	return raw
}

// plainBody returns the first text/plain part of the payload tree.
func plainBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			data, _ = base64.RawURLEncoding.DecodeString(part.Body.Data)
		}
		return string(data)
	}
	for _, p := range part.Parts {
		if text := plainBody(p); text != "" {
			return text
		}
	}
	return ""
}

var _ out.MessageSource = (*Source)(nil)
