package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gitdm/gitdm/internal/api/middleware"
	"github.com/gitdm/gitdm/internal/buildinfo"
)

// APIError is a non-2xx response of the API.
type APIError struct {
	Status        int
	Code          string
	Message       string
	CorrelationID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: '%s' (correlation: %s)", e.Status, e.Message, e.CorrelationID)
}

// errorBody accepts both {"detail": ...} and {"error": ...} bodies.
type errorBody struct {
	Detail        string `json:"detail"`
	Error         string `json:"error"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

func (c *Client) get(ctx context.Context, url string, result any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, url string, payload, result any) (string, error) {
	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshaling payload: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

func parseErrorResponse(resp *http.Response) error {
	apiErr := &APIError{
		Status:        resp.StatusCode,
		CorrelationID: correlationFromResponse(resp),
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr.Message = fmt.Sprintf("unreadable body: %v", err)
		return apiErr
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && (eb.Detail != "" || eb.Error != "") {
		apiErr.Message = eb.Detail
		if apiErr.Message == "" {
			apiErr.Message = eb.Error
		}
		apiErr.Code = eb.Code
		if apiErr.CorrelationID == "" {
			apiErr.CorrelationID = eb.CorrelationID
		}
		return apiErr
	}

	apiErr.Message = http.StatusText(resp.StatusCode)
	if len(body) > 0 {
		apiErr.Message = fmt.Sprintf("*unparsed '%s'", string(body))
	}
	return apiErr
}

func (c *Client) do(req *http.Request, result any) (string, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return req.Header.Get(middleware.CorrelationIDHeader), fmt.Errorf("connection failed: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		return correlationFromResponse(resp), parseErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return correlationFromResponse(resp), fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return correlationFromResponse(resp), nil
}

func correlationFromResponse(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	return resp.Header.Get(middleware.CorrelationIDHeader)
}
