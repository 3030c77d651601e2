// Package source retrieves the bulletin PDF analyzed for a given date.
package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"boletin-backend/internal/analysis"
)

// ErrUnavailable is returned when the bulletin site cannot serve the PDF.
var ErrUnavailable = errors.New("source material unavailable")

// Fetcher retrieves the raw source material for one bulletin date.
type Fetcher interface {
	Fetch(ctx context.Context, date string) ([]byte, error)
}

// BulletinClient fetches the first-section PDF from the official bulletin
// site. The site requires a browsing session: the edition date is set via a
// session-scoped request before the download endpoint returns the PDF.
type BulletinClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBulletinClient constructs a BulletinClient for the given base URL.
func NewBulletinClient(baseURL string) *BulletinClient {
	return &BulletinClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type downloadResponse struct {
	PDFBase64 string `json:"pdfBase64"`
}

// Fetch downloads the section PDF for the given date. Each call uses a
// fresh cookie session so stale edition state never leaks between dates.
func (c *BulletinClient) Fetch(ctx context.Context, date string) ([]byte, error) {
	parsed, err := time.Parse(analysis.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrUnavailable, date)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cookie jar: %v", ErrUnavailable, err)
	}
	session := &http.Client{
		Jar:     jar,
		Timeout: c.httpClient.Timeout,
	}

	if err := c.get(ctx, session, c.baseURL+"/seccion/primera"); err != nil {
		return nil, fmt.Errorf("%w: open session: %v", ErrUnavailable, err)
	}

	// The site expects DD-MM-YYYY in the edition selector.
	editionURL := fmt.Sprintf("%s/edicion/actualizar/%s", c.baseURL, parsed.Format("02-01-2006"))
	if err := c.get(ctx, session, editionURL); err != nil {
		return nil, fmt.Errorf("%w: select edition %s: %v", ErrUnavailable, date, err)
	}

	form := url.Values{"nombreSeccion": {"primera"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pdf/download_section", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/seccion/primera")

	resp, err := session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: edition not found for %s", ErrUnavailable, date)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download http status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode download response: %v", ErrUnavailable, err)
	}
	if payload.PDFBase64 == "" {
		return nil, fmt.Errorf("%w: empty PDF payload for %s", ErrUnavailable, date)
	}

	pdf, err := base64.StdEncoding.DecodeString(payload.PDFBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: decode PDF payload: %v", ErrUnavailable, err)
	}
	return pdf, nil
}

func (c *BulletinClient) get(ctx context.Context, session *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := session.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return nil
}

var _ Fetcher = (*BulletinClient)(nil)
