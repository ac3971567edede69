package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bucket api error %d: %s", e.StatusCode, e.Message)
}

// Snapshot is the group state a client loads before opening its websocket.
type Snapshot struct {
	Group   domain.Group    `json:"group"`
	Members []domain.Member `json:"members"`
	Items   []domain.Item   `json:"items"`
}

type CreatedGroup struct {
	Group  domain.Group  `json:"group"`
	Member domain.Member `json:"member"`
}

// API is a small REST client for the group endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

type APIOption func(*API)

func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) { a.httpClient = c }
}

func WithTimeout(d time.Duration) APIOption {
	return func(a *API) { a.httpClient.Timeout = d }
}

// NewAPI keeps cookies so the session written by join is reused.
func NewAPI(baseURL string, opts ...APIOption) *API {
	jar, _ := cookiejar.New(nil)
	a := &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) do(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func groupPath(groupID domain.GroupID) string {
	return "/api/groups/" + url.PathEscape(string(groupID))
}

func (a *API) CreateGroup(ctx context.Context, name, description, creatorName string) (*CreatedGroup, error) {
	var out CreatedGroup
	body := map[string]any{"name": name, "description": description, "creatorName": creatorName}
	if err := a.do(ctx, http.MethodPost, "/api/groups", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) JoinGroup(ctx context.Context, groupID domain.GroupID, name string) (*domain.Member, error) {
	var out domain.Member
	if err := a.do(ctx, http.MethodPost, groupPath(groupID)+"/join", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Snapshot(ctx context.Context, groupID domain.GroupID) (*Snapshot, error) {
	var out Snapshot
	if err := a.do(ctx, http.MethodGet, groupPath(groupID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) RoomStats(ctx context.Context, groupID domain.GroupID) (core.RoomStats, error) {
	var out core.RoomStats
	err := a.do(ctx, http.MethodGet, "/api/ws/rooms/"+url.PathEscape(string(groupID))+"/stats", nil, &out)
	return out, err
}
