package pharos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

// API is the subset of the task service the operation catalog depends on.
type API interface {
	Login(ctx context.Context, address common.Address, signature string, headers map[string]string) (string, error)
	CheckIn(ctx context.Context, address common.Address, headers map[string]string) error
	ClaimFaucet(ctx context.Context, address common.Address, headers map[string]string) error
	VerifyTask(ctx context.Context, address common.Address, taskID int, txHash common.Hash, headers map[string]string) error
}

// Response is the envelope every endpoint answers with. Code 0 is success.
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type loginData struct {
	JWT string `json:"jwt"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	InviteCode string
	// RequestsPerSecond bounds outbound calls of one client. Zero disables
	// the limiter.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client talks to the task API through one egress path.
type Client struct {
	baseURL    string
	inviteCode string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ API = (*Client)(nil)

// NewClient creates a client. httpClient carries the proxy routing; nil
// means a direct client with opts.Timeout.
func NewClient(opts Options, httpClient *http.Client) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.InviteCode == "" {
		opts.InviteCode = DefaultInviteCode
	}
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		inviteCode: opts.InviteCode,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// Login exchanges a signature over LoginMessage for a JWT.
func (c *Client) Login(ctx context.Context, address common.Address, signature string, headers map[string]string) (string, error) {
	q := url.Values{}
	q.Set("address", address.Hex())
	q.Set("signature", signature)
	q.Set("invite_code", c.inviteCode)

	resp, err := c.post(ctx, "login", "/user/login", q, headers)
	if err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", apperr.Businessf("login", "login failed: %s", msgOrUnknown(resp.Msg))
	}
	var data loginData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return "", apperr.Businessf("login", "login failed: malformed data: %v", err)
		}
	}
	if data.JWT == "" {
		return "", apperr.Businessf("login", "login failed: %s", msgOrUnknown(resp.Msg))
	}
	return data.JWT, nil
}

func (c *Client) CheckIn(ctx context.Context, address common.Address, headers map[string]string) error {
	q := url.Values{}
	q.Set("address", address.Hex())
	return c.expectOK(ctx, "check-in", "/sign/in", q, headers)
}

func (c *Client) ClaimFaucet(ctx context.Context, address common.Address, headers map[string]string) error {
	q := url.Values{}
	q.Set("address", address.Hex())
	return c.expectOK(ctx, "faucet claim", "/faucet/daily", q, headers)
}

// VerifyTask reports txHash as proof for taskID.
func (c *Client) VerifyTask(ctx context.Context, address common.Address, taskID int, txHash common.Hash, headers map[string]string) error {
	q := url.Values{}
	q.Set("address", address.Hex())
	q.Set("task_id", strconv.Itoa(taskID))
	q.Set("tx_hash", txHash.Hex())
	return c.expectOK(ctx, "verification", "/task/verify", q, headers)
}

func (c *Client) expectOK(ctx context.Context, op, path string, q url.Values, headers map[string]string) error {
	resp, err := c.post(ctx, op, path, q, headers)
	if err != nil {
		return err
	}
	if resp.Code != 0 {
		return apperr.Businessf(op, "%s failed: %s", op, msgOrUnknown(resp.Msg))
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, q url.Values, headers map[string]string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Timeout(op, err)
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Debugf("POST %s%s", c.baseURL, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.FromTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.FromTransport(op, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Businessf(op, "received non-2xx status code: %d, body: %s", resp.StatusCode, truncate(body, 256))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Businessf(op, "failed to unmarshal response: %v", err)
	}
	return &out, nil
}

func msgOrUnknown(msg string) string {
	if msg == "" {
		return "Unknown error"
	}
	return msg
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
