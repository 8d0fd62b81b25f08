package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/contracts-service/internal/model"
)

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("contracts api: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("contracts api: %d: %s", e.StatusCode, e.Message)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the contracts HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AttachmentURL resolves an attachment reference against the API base URL.
func (c *Client) AttachmentURL(ref string) string {
	if ref == "" {
		return ""
	}
	return c.baseURL + ref
}

func (c *Client) List(ctx context.Context) ([]model.Contract, error) {
	var contracts []model.Contract
	if err := c.do(ctx, http.MethodGet, "/api/contracts", nil, "", &contracts); err != nil {
		return nil, err
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	return contracts, nil
}

func (c *Client) Get(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	if err := c.do(ctx, http.MethodGet, "/api/contracts/"+id.String(), nil, "", &contract); err != nil {
		return nil, err
	}
	return &contract, nil
}

func (c *Client) Create(ctx context.Context, fields model.ContractFields, upload *model.Upload) (*model.Contract, error) {
	body, contentType, err := encodeForm(fields, upload)
	if err != nil {
		return nil, err
	}
	var contract model.Contract
	if err := c.do(ctx, http.MethodPost, "/api/contracts", body, contentType, &contract); err != nil {
		return nil, err
	}
	return &contract, nil
}

func (c *Client) Update(ctx context.Context, id uuid.UUID, fields model.ContractFields, upload *model.Upload) (*model.Contract, error) {
	body, contentType, err := encodeForm(fields, upload)
	if err != nil {
		return nil, err
	}
	var contract model.Contract
	if err := c.do(ctx, http.MethodPut, "/api/contracts/"+id.String(), body, contentType, &contract); err != nil {
		return nil, err
	}
	return &contract, nil
}

func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/contracts/"+id.String(), nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// encodeForm builds the same multipart body the browser form submits.
func encodeForm(fields model.ContractFields, upload *model.Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	values := []struct{ key, value string }{
		{"clientName", fields.ClientName},
		{"startDate", formatDate(fields.StartDate)},
		{"endDate", formatDate(fields.EndDate)},
		{"contractValue", strconv.FormatFloat(fields.ContractValue, 'f', -1, 64)},
		{"deliveryManager", fields.DeliveryManager},
	}
	for _, v := range values {
		if err := writer.WriteField(v.key, v.value); err != nil {
			return nil, "", err
		}
	}

	if upload != nil && upload.Content != nil {
		part, err := writer.CreateFormFile("attachment", upload.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, upload.Content); err != nil {
			return nil, "", fmt.Errorf("copy attachment: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
