// Package crm implements the tag catalog source backed by the CRM
// REST API. Records are fetched page by page with OAuth refresh-token
// authentication and surface as tagsync.SourceRecord values.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/classifier-api/internal/tagsync"
)

const (
	// tagsModule is the CRM module holding the taxonomy records.
	tagsModule = "IBRS_Tags"

	// tagFields is the field projection requested from the CRM.
	tagFields = "id,name,Alias_1,Alias_2,Alias_3,Alias_4,Short_Form,Public_Description,Internal_Commentary,Type"

	// defaultRetryAfter is used when a 429 response carries no
	// Retry-After header.
	defaultRetryAfter = 60 * time.Second

	requestTimeout = 30 * time.Second
)

// ErrRateLimited is returned when the CRM keeps rate limiting a page
// fetch after waiting out the advertised delay.
var ErrRateLimited = errors.New("rate limited by CRM")

// rateLimitError carries the Retry-After delay of a 429 response. A
// zero delay is valid and means retry immediately.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited by CRM, retry after %s", e.retryAfter)
}

// Config holds the CRM connection settings.
type Config struct {
	// BaseURL is the CRM API root, e.g. "https://www.zohoapis.com".
	BaseURL string

	// PageSize is the per_page value sent with each request, capped
	// at 200 by the CRM.
	PageSize int

	Token TokenConfig
}

// Source fetches taxonomy records from the CRM. It implements
// tagsync.Source and is safe for concurrent use.
type Source struct {
	baseURL  string
	pageSize int
	client   *http.Client
	tokens   *tokenSource
	logger   *slog.Logger
}

// NewSource creates a CRM-backed tag source.
func NewSource(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("CRM base URL cannot be empty")
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 200 {
		cfg.PageSize = 200
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := &http.Client{Timeout: requestTimeout}
	tokens, err := newTokenSource(cfg.Token, client, logger)
	if err != nil {
		return nil, err
	}

	return &Source{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		client:   client,
		tokens:   tokens,
		logger:   logger.With("component", "crm_source"),
	}, nil
}

// recordPayload is the CRM wire shape of one tag record.
type recordPayload struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Alias1             string `json:"Alias_1"`
	Alias2             string `json:"Alias_2"`
	Alias3             string `json:"Alias_3"`
	Alias4             string `json:"Alias_4"`
	ShortForm          string `json:"Short_Form"`
	PublicDescription  string `json:"Public_Description"`
	InternalCommentary string `json:"Internal_Commentary"`
	Type               string `json:"Type"`
}

// pagePayload is the CRM list response envelope.
type pagePayload struct {
	Data []recordPayload `json:"data"`
	Info struct {
		MoreRecords bool `json:"more_records"`
	} `json:"info"`
}

// FetchPage fetches one page of tag records. Pages are 1-indexed. A
// 429 response is retried once after honoring the Retry-After header.
func (s *Source) FetchPage(ctx context.Context, page int) ([]tagsync.SourceRecord, bool, error) {
	records, more, err := s.fetchOnce(ctx, page)
	var limited *rateLimitError
	if !errors.As(err, &limited) {
		return records, more, err
	}

	s.logger.Warn("rate limited by CRM, waiting before retry",
		"page", page,
		"retry_after", limited.retryAfter)

	select {
	case <-time.After(limited.retryAfter):
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	records, more, err = s.fetchOnce(ctx, page)
	if errors.As(err, &limited) {
		return nil, false, fmt.Errorf("%w: page %d", ErrRateLimited, page)
	}
	return records, more, err
}

// fetchOnce performs a single page request. A 429 response surfaces as
// a *rateLimitError so the caller can wait and retry.
func (s *Source) fetchOnce(ctx context.Context, page int) ([]tagsync.SourceRecord, bool, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to obtain CRM access token: %w", err)
	}

	url := fmt.Sprintf("%s/crm/v2/%s", s.baseURL, tagsModule)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build CRM request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)

	q := req.URL.Query()
	q.Set("fields", tagFields)
	q.Set("per_page", strconv.Itoa(s.pageSize))
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("CRM request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, false, &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked out from under us; drop it so
		// the next attempt refreshes.
		s.tokens.Invalidate()
		return nil, false, fmt.Errorf("CRM rejected access token: status %d", resp.StatusCode)
	}
	// A page past the end returns 204 with an empty body.
	if resp.StatusCode == http.StatusNoContent {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("CRM returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload pagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("failed to decode CRM response: %w", err)
	}

	records := make([]tagsync.SourceRecord, 0, len(payload.Data))
	for _, rec := range payload.Data {
		records = append(records, transformRecord(rec))
	}
	return records, payload.Info.MoreRecords, nil
}

// transformRecord maps one CRM record to the sync engine's input
// shape. Empty alias slots are dropped.
func transformRecord(rec recordPayload) tagsync.SourceRecord {
	var aliases []string
	for _, alias := range []string{rec.Alias1, rec.Alias2, rec.Alias3, rec.Alias4} {
		if a := strings.TrimSpace(alias); a != "" {
			aliases = append(aliases, a)
		}
	}

	return tagsync.SourceRecord{
		ID:          rec.ID,
		Name:        strings.TrimSpace(rec.Name),
		Aliases:     aliases,
		ShortForm:   strings.ToUpper(strings.TrimSpace(rec.ShortForm)),
		Description: strings.TrimSpace(rec.PublicDescription),
		Type:        strings.TrimSpace(rec.Type),
	}
}

// parseRetryAfter reads a Retry-After header in seconds form.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
