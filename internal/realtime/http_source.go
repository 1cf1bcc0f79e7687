package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/models"
	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
)

// HTTPSource talks to the JSON API on behalf of one signed-in member.
type HTTPSource struct {
	BaseURL    string
	HTTPClient *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Token returns the current access token; passed to Options.Token.
func (s *HTTPSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *HTTPSource) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

func (s *HTTPSource) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := s.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	s.SetTokens(resp.AccessToken, resp.RefreshToken)
	return &resp, nil
}

// Refresh rotates the token pair.
func (s *HTTPSource) Refresh(ctx context.Context) error {
	s.mu.RLock()
	refresh := s.refreshToken
	s.mu.RUnlock()

	var resp models.TokenResponse
	if err := s.do(ctx, http.MethodPost, "/api/auth/refresh", models.RefreshRequest{RefreshToken: refresh}, &resp); err != nil {
		return err
	}
	s.SetTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (s *HTTPSource) Logout(ctx context.Context) error {
	err := s.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	s.SetTokens("", "")
	return err
}

func (s *HTTPSource) Me(ctx context.Context) (*models.MeResponse, error) {
	var resp models.MeResponse
	if err := s.do(ctx, http.MethodGet, "/api/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchView is the authoritative read behind every view refresh.
func (s *HTTPSource) FetchView(ctx context.Context) (*models.ViewResponse, error) {
	var resp models.ViewResponse
	if err := s.do(ctx, http.MethodGet, "/api/me/view", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *HTTPSource) SubmitAccessRequest(ctx context.Context, form models.SubmitAccessRequest) (*models.AccessRequestResponse, error) {
	var resp models.AccessRequestResponse
	if err := s.do(ctx, http.MethodPost, "/api/access-requests", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *HTTPSource) ApproveRequest(ctx context.Context, id string) (*models.AccessRequestResponse, error) {
	var resp models.AccessRequestResponse
	if err := s.do(ctx, http.MethodPost, "/api/admin/access-requests/"+url.PathEscape(id)+"/approve", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *HTTPSource) RejectRequest(ctx context.Context, id string) (*models.AccessRequestResponse, error) {
	var resp models.AccessRequestResponse
	if err := s.do(ctx, http.MethodPost, "/api/admin/access-requests/"+url.PathEscape(id)+"/reject", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *HTTPSource) MarkNotificationsRead(ctx context.Context) (int, error) {
	var resp models.MarkAllReadResponse
	if err := s.do(ctx, http.MethodPut, "/api/notifications/read-all", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (s *HTTPSource) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return sentinel.Network(method+" "+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return sentinel.Network("read "+path, err)
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// statusError maps an API status back onto the shared error taxonomy.
func statusError(status int, body []byte) error {
	var er models.ErrorResponse
	_ = json.Unmarshal(body, &er)
	msg := er.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusBadRequest:
		if er.Field != "" {
			return sentinel.Invalid(er.Field, msg)
		}
		return fmt.Errorf("%w: %s", sentinel.ErrInvalidInput, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", sentinel.ErrAuth, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", sentinel.ErrPermissionDenied, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", sentinel.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", sentinel.ErrConflict, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", sentinel.ErrStorage, status, msg)
	}
}
