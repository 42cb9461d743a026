// Package client is the Go client for the battleship server: a fasthttp
// REST client for accounts and matchmaking, and a websocket transport for
// the game protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// TokenProvider supplies the bearer token for authenticated requests.
type TokenProvider func() string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	token   TokenProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithTokenProvider(t TokenProvider) Option {
	return func(c *Client) { c.token = t }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthResponse mirrors the server's signup/signin answer.
type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Login  string `json:"login"`
	Name   string `json:"name"`
}

// GameSummary is one archived match.
type GameSummary struct {
	GameID     string     `json:"gameId"`
	User1      string     `json:"user1"`
	User2      string     `json:"user2"`
	Result1    string     `json:"result1,omitempty"`
	Result2    string     `json:"result2,omitempty"`
	History    string     `json:"history,omitempty"`
	Winner     string     `json:"winner,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// PlayerStats is a player's lifetime tally.
type PlayerStats struct {
	UserID string `json:"userId"`
	Games  int    `json:"games"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

func (c *Client) Signup(ctx context.Context, login, name, password string) (*AuthResponse, error) {
	req := map[string]string{"login": login, "name": name, "password": password}
	var resp AuthResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/auth/signup", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Signin(ctx context.Context, login, password string) (*AuthResponse, error) {
	req := map[string]string{"login": login, "password": password}
	var resp AuthResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/auth/signin", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinGame long-polls the matchmaking queue and returns the paired game id.
// The call blocks until the server pairs the player or ctx expires; pass a
// context with a generous deadline.
func (c *Client) JoinGame(ctx context.Context) (string, error) {
	body, err := c.doText(ctx, fasthttp.MethodPost, "/api/joingame")
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(body)
	if id == "" {
		return "", errors.New("empty game id in matchmaking response")
	}
	return id, nil
}

// LeaveQueue cancels a pending matchmaking wait.
func (c *Client) LeaveQueue(ctx context.Context) error {
	_, err := c.doText(ctx, fasthttp.MethodDelete, "/api/joingame")
	return err
}

func (c *Client) LastGame(ctx context.Context) (*GameSummary, error) {
	var g GameSummary
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/last", nil, &g, true); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) UserGames(ctx context.Context, userID string) ([]GameSummary, error) {
	var list []GameSummary
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/user/"+userID, nil, &list, true); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) UserStats(ctx context.Context, userID string) (*PlayerStats, error) {
	var st PlayerStats
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/users/"+userID+"/stats", nil, &st, true); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	c.setAuthHeader(req)

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("api error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

// doText performs a plain-text request with no retries. The deadline comes
// from ctx alone, so a long poll can outlive the default timeout.
func (c *Client) doText(ctx context.Context, method, path string) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	c.setAuthHeader(req)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.defaultTimeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
	}
	return string(resp.Body()), nil
}

func (c *Client) setAuthHeader(req *fasthttp.Request) {
	if c.token == nil {
		return
	}
	if t := strings.TrimSpace(c.token()); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
