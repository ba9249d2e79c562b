package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

// SupabaseConfig configures the hosted backend client.
type SupabaseConfig struct {
	URL      string
	Key      string
	Bucket   string
	Attempts int
	Timeout  time.Duration
}

// Supabase is a Store backed by the PostgREST and Storage APIs of a hosted
// Supabase project.
type Supabase struct {
	baseURL  string
	key      string
	bucket   string
	attempts int
	client   *http.Client
	logger   logger.Logger
}

var _ Store = (*Supabase)(nil)

// NewSupabase returns a client for the project at cfg.URL.
func NewSupabase(log logger.Logger, cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errors.New("missing supabase url or key")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, errors.Wrap(err, "parse supabase url")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "assets"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Supabase{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		key:      cfg.Key,
		bucket:   cfg.Bucket,
		attempts: cfg.Attempts,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   log.WithPrefix("[store]"),
	}, nil
}

func UserAgent() string {
	gitSHA := Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitSHA = setting.Value
			}
		}
	}
	return "storefront/" + Version + " (" + gitSHA + ")"
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
			return true
		} else if msg := err.Error(); strings.Contains(msg, "EOF") {
			return true
		}
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
			return true
		}
	}
	return false
}

// safeBodyPreview returns a loggable preview of a response body. Binary or
// unknown content is reduced to its size and hash.
func safeBodyPreview(body []byte, contentType string, maxChars int) string {
	ct := strings.ToLower(contentType)
	text := ct == "" || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "json")
	if !text {
		hash := sha256.Sum256(body)
		return fmt.Sprintf("<%d bytes, sha256=%s>", len(body), hex.EncodeToString(hash[:8]))
	}
	if len(body) > maxChars {
		return string(body[:maxChars]) + "[truncated, total: " + strconv.Itoa(len(body)) + " chars]"
	}
	return string(body)
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	headers     map[string]string
}

func (s *Supabase) jsonRequest(method, path string, query url.Values, payload any) (request, error) {
	req := request{method: method, path: path, query: query, contentType: "application/json"}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return req, errors.Wrap(err, "marshal payload")
		}
		req.body = body
	}
	return req, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// do sends r, retrying transient failures with exponential backoff, and
// decodes a JSON response into response when it is non-nil.
func (s *Supabase) do(ctx context.Context, r request, response any) error {
	u := s.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	s.logger.Trace("sending request: %s %s", r.method, u)

	var resp *http.Response
	for i := range s.attempts {
		isLast := i == s.attempts-1
		req, err := http.NewRequestWithContext(ctx, r.method, u, bytes.NewReader(r.body))
		if err != nil {
			return &Error{URL: u, Method: r.method, Err: errors.Wrap(err, "create request")}
		}
		req.Header.Set("User-Agent", UserAgent())
		req.Header.Set("apikey", s.key)
		req.Header.Set("Authorization", "Bearer "+s.key)
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}

		resp, err = s.client.Do(req)
		if shouldRetry(resp, err) && !isLast {
			s.logger.Trace("retryable failure on %s %s, attempt %d", r.method, r.path, i+1)
			if resp != nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			if err := sleep(ctx, time.Duration(150*math.Pow(2, float64(i)))*time.Millisecond); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return errors.Mark(&Error{URL: u, Method: r.method, Err: errors.Wrap(err, "send request")}, ErrRemoteUnavailable)
		}
		break
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(&Error{URL: u, Method: r.method, Status: resp.StatusCode, Err: errors.Wrap(err, "read response")}, ErrRemoteUnavailable)
	}
	contentType := resp.Header.Get("Content-Type")
	s.logger.Debug("response %s: %s", resp.Status, safeBodyPreview(respBody, contentType, 200))

	if resp.StatusCode > 299 {
		apiErr := &Error{URL: u, Method: r.method, Status: resp.StatusCode, Body: string(respBody), Err: errors.Newf("request failed with status (%s)", resp.Status)}
		var body struct {
			Message string `json:"message"`
		}
		if strings.Contains(contentType, "json") && json.Unmarshal(respBody, &body) == nil && body.Message != "" {
			apiErr.Err = errors.New(body.Message)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
			return errors.Mark(apiErr, ErrRemoteUnavailable)
		}
		return apiErr
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return &Error{URL: u, Method: r.method, Status: resp.StatusCode, Body: string(respBody), Err: errors.Wrap(err, "decode response")}
		}
	}
	return nil
}

func restPath(table string) string {
	return "/rest/v1/" + table
}

func eq(v any) string {
	return fmt.Sprintf("eq.%v", v)
}

func (s *Supabase) list(ctx context.Context, table string, query url.Values, out any) error {
	req, _ := s.jsonRequest(http.MethodGet, restPath(table), query, nil)
	return s.do(ctx, req, out)
}

func (s *Supabase) upsert(ctx context.Context, table string, row any) error {
	req, err := s.jsonRequest(http.MethodPost, restPath(table), nil, row)
	if err != nil {
		return err
	}
	req.headers = map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	return s.do(ctx, req, nil)
}

func (s *Supabase) delete(ctx context.Context, table string, id int64) error {
	req, _ := s.jsonRequest(http.MethodDelete, restPath(table), url.Values{"id": {eq(id)}}, nil)
	return s.do(ctx, req, nil)
}

func (s *Supabase) ListCategories(ctx context.Context) ([]menu.Category, error) {
	var categories []menu.Category
	if err := s.list(ctx, TableCategories, url.Values{"select": {"*"}, "order": {"name"}}, &categories); err != nil {
		return nil, err
	}
	return fillSlugs(categories), nil
}

func (s *Supabase) UpsertCategory(ctx context.Context, category menu.Category) error {
	return s.upsert(ctx, TableCategories, category)
}

func (s *Supabase) DeleteCategory(ctx context.Context, id int64) error {
	return s.delete(ctx, TableCategories, id)
}

func (s *Supabase) ListItems(ctx context.Context) ([]menu.Item, error) {
	var items []menu.Item
	if err := s.list(ctx, TableItems, url.Values{"select": {"*"}, "order": {"created_at.desc"}}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Supabase) ListItemsByCategory(ctx context.Context, categoryID int64) ([]menu.Item, error) {
	var items []menu.Item
	query := url.Values{"select": {"*"}, "category_id": {eq(categoryID)}, "order": {"name"}}
	if err := s.list(ctx, TableItems, query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Supabase) GetItem(ctx context.Context, id int64) (menu.Item, bool, error) {
	var items []menu.Item
	if err := s.list(ctx, TableItems, url.Values{"select": {"*"}, "id": {eq(id)}, "limit": {"1"}}, &items); err != nil {
		return menu.Item{}, false, err
	}
	if len(items) == 0 {
		return menu.Item{}, false, nil
	}
	return items[0], true, nil
}

func (s *Supabase) UpsertItem(ctx context.Context, item menu.Item) error {
	return s.upsert(ctx, TableItems, item)
}

func (s *Supabase) DeleteItem(ctx context.Context, id int64) error {
	return s.delete(ctx, TableItems, id)
}

type setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Supabase) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var rows []setting
	if err := s.list(ctx, TableSettings, url.Values{"select": {"key,value"}, "key": {eq(key)}, "limit": {"1"}}, &rows); err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

func (s *Supabase) SetSetting(ctx context.Context, key, value string) error {
	return s.upsert(ctx, TableSettings, setting{Key: key, Value: value})
}

func (s *Supabase) UploadAsset(ctx context.Context, data []byte, contentType, path string) (string, error) {
	path = strings.TrimLeft(path, "/")
	req := request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + s.bucket + "/" + path,
		body:        data,
		contentType: contentType,
		headers:     map[string]string{"x-upsert": "true"},
	}
	if err := s.do(ctx, req, nil); err != nil {
		return "", errors.Mark(err, ErrUploadFailed)
	}
	return s.baseURL + PublicAssetPath(s.bucket, path), nil
}
