// Package transport delivers commands to the remote HID executor over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/kataras/golog"
)

// DefaultTimeout bounds one executor request.
const DefaultTimeout = 3 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRejected is returned when the executor answers with a non-ok status.
var ErrRejected = errors.New("executor rejected request")

// Executor is everything the server asks of the remote device.
type Executor interface {
	Send(ctx context.Context, cmd string) error
	RunScript(ctx context.Context, script string) error
	SetJiggler(ctx context.Context, j Jiggler) error
	Status(ctx context.Context) (DeviceStatus, error)
}

// DeviceStatus is the executor's network status report.
type DeviceStatus struct {
	WifiMode  string `json:"wifi_mode"`
	SSID      string `json:"ssid"`
	IP        string `json:"ip"`
	Connected bool   `json:"connected"`
}

// Config describes how to reach the executor.
type Config struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
	Logger   *golog.Logger
}

// Client talks to the executor's HTTP API.
type Client struct {
	http *req.Client
	log  *golog.Logger
}

type statusReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("executor url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("executor url must be http or https, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = golog.Default
	}

	hc := req.C().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetUserAgent("hidbridge")
	if cfg.User != "" {
		hc.SetCommonBasicAuth(cfg.User, cfg.Password)
	}
	return &Client{http: hc, log: logger}, nil
}

// Send posts one command line to /api/command.
func (c *Client) Send(ctx context.Context, cmd string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"cmd": cmd}).
		Post("/api/command")
	return c.check("command", resp, err)
}

// RunScript posts a ducky script to /api/script.
func (c *Client) RunScript(ctx context.Context, script string) error {
	if strings.TrimSpace(script) == "" {
		return errors.New("script is empty")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"script": script}).
		Post("/api/script")
	return c.check("script", resp, err)
}

// SetJiggler turns the executor's jiggler on or off.
func (c *Client) SetJiggler(ctx context.Context, j Jiggler) error {
	j = j.Normalize()
	if err := j.Validate(); err != nil {
		return err
	}
	params := map[string]string{"enable": "0"}
	if j.Enabled {
		params = map[string]string{
			"enable":   "1",
			"type":     j.Mode,
			"diameter": strconv.Itoa(j.Diameter),
			"delay":    strconv.Itoa(j.DelayMs),
		}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/api/jiggler")
	return c.check("jiggler", resp, err)
}

// Status fetches the executor's network status.
func (c *Client) Status(ctx context.Context) (DeviceStatus, error) {
	var st DeviceStatus
	resp, err := c.http.R().SetContext(ctx).Get("/api/status")
	body, err := c.body("status", resp, err)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, fmt.Errorf("status: decode: %w", err)
	}
	return st, nil
}

// check validates an executor reply of the form {"status":"ok"}.
func (c *Client) check(op string, resp *req.Response, err error) error {
	body, err := c.body(op, resp, err)
	if err != nil {
		return err
	}
	var reply statusReply
	if err := json.Unmarshal(body, &reply); err != nil {
		c.log.Debugf("executor: %s: unparsed reply %q", op, string(body))
		return nil
	}
	if reply.Status != "" && reply.Status != "ok" {
		return fmt.Errorf("%s: %w: %s", op, ErrRejected, reply.Message)
	}
	return nil
}

// body returns the reply body of a 2xx response.
func (c *Client) body(op string, resp *req.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp == nil || resp.Response == nil {
		return nil, fmt.Errorf("%s: no response", op)
	}
	body, readErr := resp.ToBytes()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w: http %d", op, ErrRejected, resp.StatusCode)
	}
	if readErr != nil {
		return nil, fmt.Errorf("%s: read: %w", op, readErr)
	}
	return body, nil
}

var _ Executor = (*Client)(nil)
