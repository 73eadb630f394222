// Package geoapi is a client for the remote geo service that owns fields when
// the fields backend is "remote". It implements ports.FieldRepository.
package geoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

const polygonsPath = "/geo/polygons"

// APIError is a non-2xx response from the geo service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("geo api: status %d: %s", e.Status, e.Message)
}

// Client talks to the geo service over HTTP.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
}

// New creates a client for baseURL. token is sent as a Bearer token when set.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "fieldmap",
			MaxConnsPerHost:     32,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

type createPolygonPayload struct {
	Name        string             `json:"name"`
	GeoJSON     domain.Polygon     `json:"geo_json"`
	FieldStatus domain.FieldStatus `json:"field_status"`
	Area        float64            `json:"area"`
}

type createPolygonResponse struct {
	Message string        `json:"message"`
	ID      string        `json:"id"`
	Data    *domain.Field `json:"data"`
}

// Create posts a new field. The service assigns the ID.
func (c *Client) Create(ctx context.Context, f *domain.Field) error {
	body, err := json.Marshal(createPolygonPayload{
		Name:        f.Name,
		GeoJSON:     f.Boundary,
		FieldStatus: f.Status,
		Area:        f.AreaHectares,
	})
	if err != nil {
		return fmt.Errorf("encode field: %w", err)
	}

	var resp createPolygonResponse
	if err := c.do(ctx, fasthttp.MethodPost, polygonsPath, body, &resp); err != nil {
		return err
	}
	switch {
	case resp.Data != nil && resp.Data.ID != "":
		f.ID = resp.Data.ID
		if !resp.Data.CreatedAt.IsZero() {
			f.CreatedAt = resp.Data.CreatedAt
		}
	case resp.ID != "":
		f.ID = resp.ID
	default:
		return fmt.Errorf("geo api: create response carried no field id")
	}
	return nil
}

// GetByID fetches one field.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Field, error) {
	var f domain.Field
	if err := c.do(ctx, fasthttp.MethodGet, polygonsPath+"/"+url.PathEscape(id), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// List fetches every field.
func (c *Client) List(ctx context.Context) ([]domain.Field, error) {
	var fields []domain.Field
	if err := c.do(ctx, fasthttp.MethodGet, polygonsPath, nil, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Delete removes a field.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodDelete, polygonsPath+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	// Keep escaped IDs intact; normalizing would decode %2F into a separator.
	req.URI().DisablePathNormalizing = true
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return fmt.Errorf("geo api %s %s: %w", method, path, context.DeadlineExceeded)
		}
		return fmt.Errorf("geo api %s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status == fasthttp.StatusNotFound {
		return domain.ErrNotFound
	}
	if status < 200 || status >= 300 {
		return decodeError(status, resp.Body())
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("geo api %s %s: decode: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	msg := "An error occurred"
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		msg = payload.Message
	}
	apiErr := &APIError{Status: status, Message: msg}
	if status == fasthttp.StatusBadRequest || status == fasthttp.StatusUnprocessableEntity {
		return fmt.Errorf("%w: %w", domain.ErrInvalidField, apiErr)
	}
	return apiErr
}
