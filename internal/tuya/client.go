package tuya

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"codeberg.org/mutker/tuya-exporter/internal/logger"
)

const (
	signMethod        = "HMAC-SHA256"
	tokenPath         = "/v1.0/token?grant_type=1"
	tokenExpiryMargin = 60 * time.Second
	requestTimeout    = 10 * time.Second
)

var regionEndpoints = map[string]string{
	"us": "https://openapi.tuyaus.com",
	"eu": "https://openapi.tuyaeu.com",
	"cn": "https://openapi.tuyacn.com",
	"in": "https://openapi.tuyain.com",
}

type cloudClient struct {
	baseURL  string
	clientID string
	secret   string
	http     *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Option customizes a Client during construction.
type Option func(*cloudClient)

// WithBaseURL overrides the regional endpoint.
func WithBaseURL(url string) Option {
	return func(c *cloudClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *cloudClient) {
		c.http = hc
	}
}

// NewClient creates a cloud API client for the given region and credentials.
func NewClient(region, clientID, secret string, opts ...Option) (Client, error) {
	errFactory := errors.New()

	baseURL, ok := regionEndpoints[region]
	if !ok {
		return nil, errFactory.WithData(ErrInvalidConfig, region)
	}
	if clientID == "" || secret == "" {
		return nil, errFactory.New(ErrInvalidConfig)
	}

	c := &cloudClient{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		http:     &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *cloudClient) GetDevice(ctx context.Context, deviceID string) (*DeviceInfo, error) {
	info := &DeviceInfo{}
	if err := c.get(ctx, "/v1.0/devices/"+deviceID, info); err != nil {
		return nil, err
	}

	return info, nil
}

func (c *cloudClient) GetDeviceSpecification(ctx context.Context, deviceID string) (*Specification, error) {
	spec := &Specification{}
	if err := c.get(ctx, "/v1.0/devices/"+deviceID+"/specifications", spec); err != nil {
		return nil, err
	}

	return spec, nil
}

// envelope is the response wrapper every cloud endpoint uses
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
	T       int64           `json:"t"`
}

type tokenResult struct {
	AccessToken  string `json:"access_token"`
	ExpireTime   int64  `json:"expire_time"`
	RefreshToken string `json:"refresh_token"`
	UID          string `json:"uid"`
}

// get performs an authenticated GET and decodes the envelope result into out.
func (c *cloudClient) get(ctx context.Context, path string, out any) error {
	errFactory := errors.New()

	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	result, err := c.do(ctx, path, token)
	if err != nil {
		if errors.CodeOf(err) == ErrAuth {
			c.invalidateToken()
		}
		return err
	}

	if len(result) == 0 || string(result) == "null" {
		return errFactory.WithMessage(ErrMalformedResponse, "empty result")
	}
	if err := json.Unmarshal(result, out); err != nil {
		return errFactory.Wrap(ErrMalformedResponse, err)
	}

	return nil
}

// ensureToken returns a valid access token, requesting a new one when the
// cached token is missing or about to expire.
func (c *cloudClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return c.accessToken, nil
	}

	errFactory := errors.New()

	result, err := c.do(ctx, tokenPath, "")
	if err != nil {
		return "", err
	}

	token := tokenResult{}
	if err := json.Unmarshal(result, &token); err != nil {
		return "", errFactory.Wrap(ErrMalformedResponse, err)
	}
	if token.AccessToken == "" {
		return "", errFactory.WithMessage(ErrTokenRequest, "token response without access_token")
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpireTime) * time.Second)
	logger.Debug().Time("expiry", c.tokenExpiry).Msg("Obtained cloud access token")

	return c.accessToken, nil
}

func (c *cloudClient) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
}

// do performs one signed GET against path and returns the envelope result.
// An empty token signs a token-grant request.
func (c *cloudClient) do(ctx context.Context, path, token string) (json.RawMessage, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	t := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("client_id", c.clientID)
	req.Header.Set("sign", c.sign(http.MethodGet, path, token, t))
	req.Header.Set("t", t)
	req.Header.Set("sign_method", signMethod)
	if token != "" {
		req.Header.Set("access_token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errFactory.Wrap(ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errFactory.WithData(classifyStatus(resp.StatusCode), resp.StatusCode)
	}

	env := envelope{}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errFactory.Wrap(ErrMalformedResponse, err)
	}
	if !env.Success {
		return nil, errFactory.WithData(classifyBusinessCode(env.Code), env.Code).WithMessage(env.Msg)
	}

	return env.Result, nil
}

// sign computes the HMAC-SHA256 request signature in the cloud's v1.0 scheme:
// sign = HMAC(client_id [+ access_token] + t + stringToSign), where
// stringToSign = METHOD\nSHA256(body)\n\npath. GET requests carry no body.
func (c *cloudClient) sign(method, path, token, t string) string {
	bodyHash := sha256.Sum256(nil)
	stringToSign := method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n" + "\n" + path

	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(c.clientID + token + t + stringToSign))

	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
