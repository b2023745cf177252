package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-hotspot/internal/cache"
	"github.com/miradorstack/mirador-hotspot/internal/models"
)

const maxSourcePages = 50

// SignalSource pulls signals from the upstream web application's export API.
type SignalSource struct {
	baseURL    string
	exportPath string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
}

// NewSignalSource constructs a client for the export endpoint. An empty baseURL
// leaves the source disabled.
func NewSignalSource(baseURL, exportPath, apiKey string, pageSize int, timeout time.Duration, cacheProvider cache.Provider, cacheTTL time.Duration) *SignalSource {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	if exportPath == "" {
		exportPath = "/api/signals/export"
	}
	return &SignalSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		exportPath: exportPath,
		apiKey:     apiKey,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		cacheTTL:   cacheTTL,
	}
}

// Enabled reports whether an upstream is configured.
func (s *SignalSource) Enabled() bool {
	return s != nil && s.baseURL != ""
}

type exportPage struct {
	Signals    []exportSignal `json:"signals"`
	NextCursor string         `json:"nextCursor"`
}

type exportSignal struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    string            `json:"severity"`
	Department  string            `json:"department"`
	Departments []string          `json:"departments"`
	Metadata    map[string]string `json:"metadata"`
	CreatedBy   string            `json:"createdBy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// FetchSignals returns every signal updated at or after since, following the
// export cursor. Complete results are cached for cacheTTL.
func (s *SignalSource) FetchSignals(ctx context.Context, since time.Time) ([]models.Signal, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("signal source not configured")
	}

	cacheKey := ""
	if s.cacheTTL > 0 {
		cacheKey = sourceCacheKey(since)
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.Signal
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var (
		out    []models.Signal
		cursor string
	)
	for page := 0; page < maxSourcePages; page++ {
		var resp exportPage
		if err := s.getJSON(ctx, s.pageURL(since, cursor), &resp); err != nil {
			return nil, fmt.Errorf("signal export page %d: %w", page, err)
		}
		for _, raw := range resp.Signals {
			if sig, ok := raw.toSignal(); ok {
				out = append(out, sig)
			}
		}
		if resp.NextCursor == "" || resp.NextCursor == cursor {
			break
		}
		cursor = resp.NextCursor
	}

	if cacheKey != "" && len(out) > 0 {
		if payload, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, cacheKey, payload, s.cacheTTL)
		}
	}
	return out, nil
}

func (e exportSignal) toSignal() (models.Signal, bool) {
	if strings.TrimSpace(e.ID) == "" {
		return models.Signal{}, false
	}
	severity, _ := models.ParseSeverity(e.Severity)
	depts := append([]string(nil), e.Departments...)
	if e.Department != "" {
		depts = append(depts, e.Department)
	}
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = e.CreatedAt
	}
	return models.Signal{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Severity:    severity,
		Departments: depts,
		Metadata:    e.Metadata,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   updated,
	}, true
}

func (s *SignalSource) pageURL(since time.Time, cursor string) string {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + "/" + strings.TrimLeft(s.exportPath, "/")
	}
	u.Path = path.Join(u.Path, "/"+strings.TrimLeft(s.exportPath, "/"))
	q := u.Query()
	q.Set("limit", fmt.Sprint(s.pageSize))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *SignalSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signal source returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sourceCacheKey(since time.Time) string {
	if since.IsZero() {
		return "source:signals:all"
	}
	return "source:signals:" + since.UTC().Format(time.RFC3339)
}
