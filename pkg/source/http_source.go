// FILE: pkg/source/http_source.go
// PURPOSE: Client for the scraper collaborator that returns cleaned documents by source URL

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/apperror"
)

// Fetcher returns the current cleaned content of a source.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) (*entity.Document, error)
}

type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

var _ Fetcher = (*HTTPSource)(nil)

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type scrapedDocument struct {
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	SourceType  string    `json:"source_type"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	Text        string    `json:"text"`
}

// Fetch calls GET {base}/documents?source_url=... . A 404 maps to ErrDocumentNotFound, other
// failures to ErrUpstreamUnavailable.
func (s *HTTPSource) Fetch(ctx context.Context, sourceURL string) (*entity.Document, error) {
	endpoint := fmt.Sprintf("%s/documents?source_url=%s", s.BaseURL, url.QueryEscape(sourceURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperror.ErrInvalidInput.Wrap(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, apperror.ErrUpstreamUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.ErrUpstreamUnavailable.Wrap(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperror.ErrDocumentNotFound.WithDetail("source_url", sourceURL)
	case resp.StatusCode != http.StatusOK:
		return nil, apperror.ErrUpstreamUnavailable.
			Wrap(fmt.Errorf("scraper returned status %d", resp.StatusCode)).
			WithDetail("source_url", sourceURL)
	}

	var doc scrapedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperror.ErrUpstreamUnavailable.Wrap(fmt.Errorf("decode scraper response: %w", err))
	}
	if doc.SourceURL == "" {
		doc.SourceURL = sourceURL
	}

	return &entity.Document{
		SourceURL:   doc.SourceURL,
		Title:       doc.Title,
		SourceType:  entity.SourceType(doc.SourceType),
		Category:    doc.Category,
		PublishedAt: doc.PublishedAt,
		RawText:     doc.Text,
	}, nil
}
