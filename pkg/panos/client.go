// Package panos implements the device command channel over the PAN-OS XML
// API. It needs an already issued API key; key generation and login are not
// handled here.
package panos

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// DefaultPort is the HTTPS port of the management interface.
const DefaultPort = 443

// Response status codes with a specific meaning.
const (
	CodeObjectNotPresent = "7"
	CodeSuccess          = "19"
	CodeCommandSucceeded = "20"
)

// Client is a minimal XML API client.
type Client struct {
	// BaseURL is scheme://host:port of the device.
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	host string
}

// NewClient creates a client for host:port. Devices usually present a
// self-signed certificate, so insecure disables verification.
func NewClient(host string, port int, apiKey string, insecure bool) *Client {
	if port <= 0 {
		port = DefaultPort
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
	}
	return &Client{
		BaseURL:    "https://" + net.JoinHostPort(host, strconv.Itoa(port)),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 120 * time.Second, Transport: transport},
		host:       host,
	}
}

// Host returns the device host name.
func (c *Client) Host() string {
	if c.host != "" {
		return c.host
	}
	if u, err := url.Parse(c.BaseURL); err == nil {
		return u.Hostname()
	}
	return c.BaseURL
}

// Response is a parsed XML API response.
type Response struct {
	Status  string
	Code    string
	Message string

	// Raw is the full response document.
	Raw string

	doc *etree.Document
}

// Success reports whether the device accepted the request.
func (r *Response) Success() bool {
	return r.Status == "success"
}

// Result returns the result element, or nil.
func (r *Response) Result() *etree.Element {
	if r.doc == nil || r.doc.Root() == nil {
		return nil
	}
	return r.doc.Root().SelectElement("result")
}

// ResultText returns the trimmed text of the result element.
func (r *Response) ResultText() string {
	if el := r.Result(); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// Find returns the first element matching an ElementTree path relative to the
// response root.
func (r *Response) Find(path string) *etree.Element {
	if r.doc == nil || r.doc.Root() == nil {
		return nil
	}
	return r.doc.Root().FindElement(path)
}

// ParseResponse parses a response document. A document that does not parse
// is an error; a parsed error response is not.
func ParseResponse(raw string) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "response" {
		return nil, fmt.Errorf("parse response: missing response element")
	}
	resp := &Response{
		Status: root.SelectAttrValue("status", ""),
		Code:   root.SelectAttrValue("code", ""),
		Raw:    raw,
		doc:    doc,
	}
	resp.Message = responseMessage(root)
	return resp, nil
}

// responseMessage collects the msg text, which the device returns either as
// plain text or as a list of line elements, at the top level or in result.
func responseMessage(root *etree.Element) string {
	for _, path := range []string{"msg", "result/msg"} {
		msg := root.FindElement(path)
		if msg == nil {
			continue
		}
		lines := msg.FindElements(".//line")
		if len(lines) == 0 {
			return strings.TrimSpace(msg.Text())
		}
		parts := make([]string, 0, len(lines))
		for _, l := range lines {
			if t := strings.TrimSpace(l.Text()); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// Do posts params to the API and returns the parsed response. Transport
// failures, non-200 replies and error responses are returned as
// *util.DeviceOperationError.
func (c *Client) Do(ctx context.Context, params url.Values) (*Response, error) {
	return c.post(ctx, params, c.BaseURL+"/api/", strings.NewReader(params.Encode()),
		"application/x-www-form-urlencoded")
}

// Import uploads content as a file of the given category ("configuration"
// for saved configs). The request type and category travel in the query
// string and the file as the multipart "file" field.
func (c *Client) Import(ctx context.Context, category, filename string, content []byte) (*Response, error) {
	params := url.Values{"type": {"import"}, "category": {category}}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return c.post(ctx, params, c.BaseURL+"/api/?"+params.Encode(), &body, mw.FormDataContentType())
}

func (c *Client) post(ctx context.Context, params url.Values, target string, body io.Reader, contentType string) (*Response, error) {
	opErr := func(code string, err error) error {
		return &util.DeviceOperationError{
			Device:  c.Host(),
			Command: describe(params),
			XPath:   params.Get("xpath"),
			Code:    code,
			Err:     err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, opErr("", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-PAN-KEY", c.APIKey)

	util.WithDevice(c.Host()).Debugf("xapi %s", describe(params))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, opErr("", fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, opErr("", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, opErr(strconv.Itoa(resp.StatusCode), fmt.Errorf("HTTP %d: %s", resp.StatusCode, util.Truncate(string(raw), 300)))
	}

	parsed, err := ParseResponse(string(raw))
	if err != nil {
		return nil, opErr("", err)
	}
	if !parsed.Success() {
		msg := parsed.Message
		if msg == "" {
			msg = "request failed with status " + parsed.Status
		}
		var cause error = errors.New(msg)
		if parsed.Code == CodeObjectNotPresent {
			cause = fmt.Errorf("xpath %s was not found: %s: %w", params.Get("xpath"), msg, util.ErrNotFound)
		}
		return parsed, opErr(parsed.Code, cause)
	}
	return parsed, nil
}

// describe renders the request type and action for logs and errors.
func describe(params url.Values) string {
	s := "type=" + params.Get("type")
	if a := params.Get("action"); a != "" {
		s += " action=" + a
	}
	if cat := params.Get("category"); cat != "" {
		s += " category=" + cat
	}
	return s
}
