package transcribe

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoCaptions means the video has no captions in the requested language.
var ErrNoCaptions = errors.New("no captions available")

// CaptionFetcher fetches the caption track of a video in one language.
type CaptionFetcher interface {
	Fetch(ctx context.Context, videoID, lang string) (string, error)
}

// DefaultTimedTextURL is YouTube's public caption endpoint.
const DefaultTimedTextURL = "https://www.youtube.com/api/timedtext"

// TimedTextFetcher reads captions from the timedtext XML endpoint.
type TimedTextFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewTimedTextFetcher creates a fetcher. An empty baseURL uses
// DefaultTimedTextURL.
func NewTimedTextFetcher(baseURL string, timeout time.Duration) *TimedTextFetcher {
	if baseURL == "" {
		baseURL = DefaultTimedTextURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TimedTextFetcher{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

type timedText struct {
	Texts []struct {
		Body string `xml:",chardata"`
	} `xml:"text"`
}

func (f *TimedTextFetcher) Fetch(ctx context.Context, videoID, lang string) (string, error) {
	q := url.Values{"v": {videoID}, "lang": {lang}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build caption request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoCaptions
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch captions: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read captions: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", ErrNoCaptions
	}

	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parse captions: %w", err)
	}

	parts := make([]string, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		// Caption text is entity-encoded a second time inside the XML.
		s := strings.Join(strings.Fields(html.UnescapeString(t.Body)), " ")
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoCaptions
	}
	return strings.Join(parts, " "), nil
}
