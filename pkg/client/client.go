// Package client implements a client for the esmond measurement archive REST
// API: registering a metadata block and storing datapoints under it.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

const libraryName = "esmond-archiver"

// TransportError is returned when the archive could not be reached or did
// not answer in time.
type TransportError struct {
	Op  Operation
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectionError is returned when the archive answered with an unexpected
// status code.
type RejectionError struct {
	Op         Operation
	StatusCode int
	// Detail is the "detail" field of the response, or the raw response body
	// if there is none.
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Detail)
}

// Client is an esmond archive client. It is safe for concurrent use.
type Client struct {
	// ClientName is the name of the client sent as part of the user-agent.
	ClientName string
	// ClientVersion is the version of the client sent as part of the user-agent.
	ClientVersion string

	config  Config
	baseURL string
	http    *resty.Client
}

// makeUserAgent creates the user agent string.
func makeUserAgent(clientName, clientVersion string) string {
	return clientName + "/" + clientVersion + " " + libraryName
}

// New returns a new Client with the provided client name, version and config.
// It returns an error if the bind address cannot be resolved.
func New(clientName, clientVersion string, config Config) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = spec.HTTPTimeout
	}
	if config.Emitter == nil {
		config.Emitter = LogEmitter{}
	}
	if config.URL == "" {
		config.URL = spec.DefaultURL
	}

	dialer := &net.Dialer{Timeout: config.Timeout}
	if config.Bind != "" {
		addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(config.Bind, "0"))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot bind to %q", config.Bind)
		}
		dialer.LocalAddr = addr
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: !config.VerifySSL},
		TLSHandshakeTimeout:   config.Timeout,
		ResponseHeaderTimeout: config.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	rc := resty.NewWithClient(&http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	})
	rc.SetHeader("Content-Type", "application/json")
	rc.SetHeader("Accept", "application/json")
	rc.SetHeader("User-Agent", makeUserAgent(clientName, clientVersion))
	if config.AuthToken != "" {
		rc.SetAuthScheme("Token")
		rc.SetAuthToken(config.AuthToken)
	}

	baseURL := config.URL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		ClientName:    clientName,
		ClientVersion: clientVersion,
		config:        config,
		baseURL:       baseURL,
		http:          rc,
	}, nil
}

// CreateMetadata registers md and returns the metadata key assigned by the
// archive. Registering the same metadata twice returns the same key.
func (c *Client) CreateMetadata(ctx context.Context, md model.Metadata) (string, error) {
	c.config.Emitter.OnDebug(fmt.Sprintf("posting metadata to %s", c.baseURL))
	resp, err := c.do(ctx, OpCreateMetadata, http.MethodPost, c.baseURL, md)
	if err != nil {
		return "", err
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
	default:
		return "", rejection(OpCreateMetadata, resp)
	}
	key := gjson.GetBytes(resp.Body(), "metadata-key")
	if !key.Exists() || key.String() == "" {
		return "", &RejectionError{
			Op:         OpCreateMetadata,
			StatusCode: resp.StatusCode(),
			Detail:     "response has no metadata-key",
		}
	}
	return key.String(), nil
}

// CreateData stores points under the metadata identified by key. Points the
// archive already holds are not an error.
func (c *Client) CreateData(ctx context.Context, key string, points []model.DataPoint) error {
	url := c.baseURL + key + "/"
	c.config.Emitter.OnDebug(fmt.Sprintf("putting %d datapoint(s) to %s", len(points), url))
	body := map[string]any{"data": points}
	resp, err := c.do(ctx, OpCreateData, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusConflict:
		c.config.Emitter.OnDebug("attempted to add duplicate datapoint, skipping")
		return nil
	case code >= 200 && code < 300:
		return nil
	default:
		return rejection(OpCreateData, resp)
	}
}

// CloseIdleConnections closes the connections kept alive for later requests.
func (c *Client) CloseIdleConnections() {
	c.http.GetClient().CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, op Operation, method, url string, body any) (*resty.Response, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Execute(method, url)
	if err != nil {
		err = &TransportError{Op: op, Err: errors.Wrap(err, describe(op, url))}
		c.config.Emitter.OnError(op, err)
		return nil, err
	}
	c.config.Emitter.OnResponse(op, resp.StatusCode(), time.Since(start))
	return resp, nil
}

// rejection builds the error for an unexpected response, preferring the
// response's "detail" field over its raw body.
func rejection(op Operation, resp *resty.Response) *RejectionError {
	detail := string(resp.Body())
	if d := gjson.GetBytes(resp.Body(), "detail"); d.Exists() {
		detail = d.String()
	}
	return &RejectionError{
		Op:         op,
		StatusCode: resp.StatusCode(),
		Detail:     detail,
	}
}
