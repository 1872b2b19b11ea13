package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/squadbot/platform_core/internal/httputil"
)

const (
	maxSupabaseResponseBytes  = 8 << 20  // 8 MiB
	maxSupabaseErrorBodyBytes = 32 << 10 // 32 KiB
)

// SupabaseOptions configures a SupabaseStore.
type SupabaseOptions struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co.
	URL string

	// ServiceKey authenticates REST calls.
	ServiceKey string

	// RequestsPerSecond caps outbound calls. 0 disables the limiter.
	RequestsPerSecond float64

	// HTTPClient overrides the default client. Mainly used by tests.
	HTTPClient *http.Client
}

// SupabaseStore talks to Supabase's PostgREST endpoint. Each collection maps
// to a table with an "id" text column; the whole document is the row.
type SupabaseStore struct {
	url        string
	serviceKey string
	client     *http.Client
	limiter    *rate.Limiter
}

var _ DocumentStore = (*SupabaseStore)(nil)

// NewSupabaseStore builds a store over the Supabase REST API.
func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if opts.ServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		transport := http.DefaultTransport
		if base, ok := http.DefaultTransport.(*http.Transport); ok {
			cloned := base.Clone()
			if cloned.TLSClientConfig == nil {
				cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			} else if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
				cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
				cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
			}
			transport = cloned
		}
		client = &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(opts.RequestsPerSecond)+1)
	}

	return &SupabaseStore{
		url:        strings.TrimRight(opts.URL, "/"),
		serviceKey: opts.ServiceKey,
		client:     client,
		limiter:    limiter,
	}, nil
}

func (s *SupabaseStore) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	query := "id=eq." + url.QueryEscape(id) + "&limit=1"
	body, status, err := s.request(ctx, http.MethodGet, collection, query, nil, "application/vnd.pgrst.object+json")
	if status == http.StatusNotAcceptable {
		return nil, NewNotFoundError(collection, id)
	}
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", collection, err)
	}
	return doc, nil
}

func (s *SupabaseStore) QueryDocuments(ctx context.Context, collection string, filters map[string]interface{}) ([]Document, error) {
	body, _, err := s.request(ctx, http.MethodGet, collection, filterQuery(filters), nil, "")
	if err != nil {
		return nil, err
	}

	var docs []Document
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("decode %s documents: %w", collection, err)
	}
	return docs, nil
}

func (s *SupabaseStore) CreateDocument(ctx context.Context, collection string, doc Document) (string, error) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
		stored := make(Document, len(doc)+1)
		for k, v := range doc {
			stored[k] = v
		}
		stored["id"] = id
		doc = stored
	}

	if _, _, err := s.request(ctx, http.MethodPost, collection, "", doc, ""); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SupabaseStore) UpdateDocument(ctx context.Context, collection, id string, doc Document) error {
	query := "id=eq." + url.QueryEscape(id)
	body, _, err := s.request(ctx, http.MethodPatch, collection, query, doc, "")
	if err != nil {
		return err
	}
	return s.requireMatch(body, collection, id)
}

func (s *SupabaseStore) DeleteDocument(ctx context.Context, collection, id string) error {
	query := "id=eq." + url.QueryEscape(id)
	body, _, err := s.request(ctx, http.MethodDelete, collection, query, nil, "")
	if err != nil {
		return err
	}
	return s.requireMatch(body, collection, id)
}

// Close releases idle connections.
func (s *SupabaseStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Ping verifies connectivity and credentials.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("supabase ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("supabase ping: status %d", resp.StatusCode)
	}
	return nil
}

// request performs one REST call. PostgREST is asked for representation so
// mutation responses reveal whether any row matched.
func (s *SupabaseStore) request(ctx context.Context, method, table, query string, body interface{}, accept string) ([]byte, int, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqURL := fmt.Sprintf("%s/rest/v1/%s", s.url, url.PathEscape(table))
	if query != "" {
		reqURL += "?" + query
	}

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotAcceptable {
		return nil, resp.StatusCode, fmt.Errorf("supabase API error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		respBody, truncated, readErr := httputil.ReadAllWithLimit(resp.Body, maxSupabaseErrorBodyBytes)
		if readErr != nil {
			return nil, resp.StatusCode, fmt.Errorf("read error response: %w", readErr)
		}
		msg := strings.TrimSpace(string(respBody))
		if truncated {
			msg += "...(truncated)"
		}
		return nil, resp.StatusCode, fmt.Errorf("supabase API error %d: %s", resp.StatusCode, msg)
	}

	respBody, err := httputil.ReadAllStrict(resp.Body, maxSupabaseResponseBytes)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func (s *SupabaseStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

// requireMatch interprets a representation response from a mutation: an
// empty array means no row matched the id.
func (s *SupabaseStore) requireMatch(body []byte, collection, id string) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		// Some deployments answer with a bare object; that is a match.
		return nil
	}
	if len(rows) == 0 {
		return NewNotFoundError(collection, id)
	}
	return nil
}

// filterQuery renders equality filters as PostgREST query parameters in a
// stable order.
func filterQuery(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return ""
	}
	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s=eq.%s", url.QueryEscape(field), url.QueryEscape(fmt.Sprint(filters[field]))))
	}
	return strings.Join(parts, "&")
}
