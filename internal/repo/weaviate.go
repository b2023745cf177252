package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-hotspot/internal/cache"
	"github.com/miradorstack/mirador-hotspot/internal/models"
)

const signalVectorClass = "SignalVector"

// signalNamespace derives stable Weaviate object IDs from signal IDs.
var signalNamespace = uuid.MustParse("5b0f7a8e-3c1d-4c55-9e0b-6f3a2d1c9b47")

// VectorIndex stores optimised feature vectors in Weaviate and answers
// nearest-neighbour queries. With no endpoint every call is a no-op.
type VectorIndex struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	similarTTL time.Duration
}

// IndexedSignal is one object written to the index.
type IndexedSignal struct {
	SignalID    string
	Title       string
	ContentHash string
	RootCause   models.RootCause
	Departments []string
	Vector      []float64
}

// NewVectorIndex constructs a Weaviate client.
func NewVectorIndex(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, similarTTL time.Duration) *VectorIndex {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if similarTTL < 0 {
		similarTTL = 0
	}
	return &VectorIndex{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		similarTTL: similarTTL,
	}
}

// Enabled reports whether a Weaviate endpoint is configured.
func (v *VectorIndex) Enabled() bool {
	return v != nil && v.endpoint != ""
}

// ObjectID is the deterministic Weaviate UUID for a signal.
func ObjectID(signalID string) string {
	return uuid.NewSHA1(signalNamespace, []byte(signalID)).String()
}

// Upsert writes signals through the batch endpoint. Object IDs are derived from
// signal IDs, so re-indexing replaces the previous vector.
func (v *VectorIndex) Upsert(ctx context.Context, signals []IndexedSignal) error {
	if !v.Enabled() || len(signals) == 0 {
		return nil
	}

	objects := make([]map[string]any, 0, len(signals))
	for _, s := range signals {
		objects = append(objects, map[string]any{
			"class":  signalVectorClass,
			"id":     ObjectID(s.SignalID),
			"vector": s.Vector,
			"properties": map[string]any{
				"signalId":    s.SignalID,
				"title":       s.Title,
				"contentHash": s.ContentHash,
				"rootCause":   string(s.RootCause),
				"departments": s.Departments,
			},
		})
	}

	body, err := json.Marshal(map[string]any{"objects": objects})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	resp, err := v.post(ctx, "/v1/batch/objects", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("weaviate batch upsert failed: %s", strings.TrimSpace(string(data)))
	}

	var results []struct {
		Result struct {
			Errors *struct {
				Error []struct {
					Message string `json:"message"`
				} `json:"error"`
			} `json:"errors"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil
	}
	for _, r := range results {
		if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate batch object rejected: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Delete removes a signal's vector. Missing objects are not an error.
func (v *VectorIndex) Delete(ctx context.Context, signalID string) error {
	if !v.Enabled() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, v.endpoint+"/v1/objects/"+signalVectorClass+"/"+ObjectID(signalID), nil)
	if err != nil {
		return err
	}
	v.authorize(req)
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return fmt.Errorf("weaviate delete returned %s", resp.Status)
}

// Similar returns up to limit signals nearest to vector, excluding excludeID.
// Similarity is Weaviate's cosine certainty.
func (v *VectorIndex) Similar(ctx context.Context, excludeID string, vector []float64, limit int) ([]models.SimilarSignal, error) {
	if !v.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	cacheKey := ""
	if v.similarTTL > 0 {
		cacheKey = similarCacheKey(excludeID, vector, limit)
		if data, err := v.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.SimilarSignal
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	vec, err := json.Marshal(vector)
	if err != nil {
		return nil, err
	}
	gql := fmt.Sprintf(`{
  Get {
    %s(
      limit: %d
      nearVector: {vector: %s}
    ) {
      signalId
      title
      rootCause
      _additional { certainty }
    }
  }
}`, signalVectorClass, limit+1, vec)

	body, err := json.Marshal(map[string]any{"query": gql})
	if err != nil {
		return nil, err
	}
	resp, err := v.post(ctx, "/v1/graphql", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weaviate graphql returned %s", resp.Status)
	}

	var response struct {
		Data struct {
			Get map[string][]struct {
				SignalID   string `json:"signalId"`
				Title      string `json:"title"`
				RootCause  string `json:"rootCause"`
				Additional struct {
					Certainty float64 `json:"certainty"`
				} `json:"_additional"`
			} `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", response.Errors[0].Message)
	}

	hits := make([]models.SimilarSignal, 0, limit)
	for _, rec := range response.Data.Get[signalVectorClass] {
		if rec.SignalID == excludeID {
			continue
		}
		hits = append(hits, models.SimilarSignal{
			SignalID:   rec.SignalID,
			Title:      rec.Title,
			RootCause:  models.RootCause(rec.RootCause),
			Similarity: rec.Additional.Certainty,
		})
		if len(hits) == limit {
			break
		}
	}

	if cacheKey != "" && len(hits) > 0 {
		if payload, err := json.Marshal(hits); err == nil {
			_ = v.cache.Set(ctx, cacheKey, payload, v.similarTTL)
		}
	}
	return hits, nil
}

func (v *VectorIndex) post(ctx context.Context, p string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+p, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	v.authorize(req)
	return v.httpClient.Do(req)
}

func (v *VectorIndex) authorize(req *http.Request) {
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}
}

func similarCacheKey(signalID string, vector []float64, limit int) string {
	h := sha256.New()
	_ = json.NewEncoder(h).Encode(vector)
	return fmt.Sprintf("weaviate:similar:%s:%d:%s", signalID, limit, hex.EncodeToString(h.Sum(nil))[:16])
}
