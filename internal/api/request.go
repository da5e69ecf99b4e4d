package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request identifier. A replay after token
// refresh reuses the identifier of the original attempt.
const RequestIDHeader = "X-Request-ID"

// Request describes a call to the backend.
type Request struct {
	// Method is the HTTP method, e.g. http.MethodGet.
	Method string

	// Path is relative to the API base URL and must start with "/", e.g. "/events/".
	Path string

	// Query is appended to the URL.
	Query url.Values

	// Body is JSON encoded. []byte and json.RawMessage are sent verbatim.
	Body any

	// Header holds additional request headers.
	Header http.Header
}

// Response is a successful backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// preparedRequest is a Request with its body encoded once so it can be replayed.
type preparedRequest struct {
	method    string
	path      string
	query     url.Values
	body      []byte
	header    http.Header
	requestID string

	// sentToken is the access token the first attempt carried.
	sentToken string

	// retried is set once the request has been through a token refresh.
	retried bool
}

func prepare(req *Request) (*preparedRequest, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if !strings.HasPrefix(req.Path, "/") {
		return nil, fmt.Errorf("request path %q must start with /", req.Path)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = b
	case json.RawMessage:
		body = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = encoded
	}

	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	requestID := header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return &preparedRequest{
		method:    strings.ToUpper(method),
		path:      req.Path,
		query:     req.Query,
		body:      body,
		header:    header,
		requestID: requestID,
	}, nil
}
