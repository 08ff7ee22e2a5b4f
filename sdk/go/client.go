package sitelogsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal sitelog HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

type Material struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Notes    *string `json:"notes,omitempty"`
}

type Photo struct {
	Path         string  `json:"path"`
	OriginalName string  `json:"original_name"`
	Description  *string `json:"description,omitempty"`
	UploadedAt   string  `json:"uploaded_at"`
}

type Document struct {
	Path         string `json:"path"`
	OriginalName string `json:"original_name"`
	Type         string `json:"type"`
	UploadedAt   string `json:"uploaded_at"`
}

// Log represents the API daily log model.
type Log struct {
	ID                string     `json:"id"`
	Date              string     `json:"date"`
	StartTime         string     `json:"start_time"`
	EndTime           string     `json:"end_time"`
	WorkDescription   string     `json:"work_description"`
	Weather           *string    `json:"weather,omitempty"`
	IssuesEncountered *string    `json:"issues_encountered,omitempty"`
	NextSteps         *string    `json:"next_steps,omitempty"`
	TeamLeaderID      string     `json:"team_leader_id"`
	ProjectID         string     `json:"project_id"`
	Employees         []string   `json:"employees"`
	MaterialsUsed     []Material `json:"materials_used"`
	Photos            []Photo    `json:"photos"`
	Documents         []Document `json:"documents"`
	Status            string     `json:"status"`
	ApprovedBy        *string    `json:"approved_by,omitempty"`
	ApprovedAt        *string    `json:"approved_at,omitempty"`
	CreatedAt         string     `json:"created_at"`
	UpdatedAt         string     `json:"updated_at"`
}

// NewLog is the body of CreateLog.
type NewLog struct {
	Date              string     `json:"date"`
	StartTime         string     `json:"start_time"`
	EndTime           string     `json:"end_time"`
	WorkDescription   string     `json:"work_description"`
	Weather           *string    `json:"weather,omitempty"`
	IssuesEncountered *string    `json:"issues_encountered,omitempty"`
	NextSteps         *string    `json:"next_steps,omitempty"`
	ProjectID         string     `json:"project_id"`
	Employees         []string   `json:"employees,omitempty"`
	MaterialsUsed     []Material `json:"materials_used,omitempty"`
}

// ListOptions narrows ListLogs. Empty fields are not sent.
type ListOptions struct {
	StartDate  string
	EndDate    string
	Project    string
	Status     string
	TeamLeader string
	SearchTerm string
}

func (o ListOptions) query() string {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("startDate", o.StartDate)
	set("endDate", o.EndDate)
	set("project", o.Project)
	set("status", o.Status)
	set("teamLeader", o.TeamLeader)
	set("searchTerm", o.SearchTerm)
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

type Notification struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	RelatedLogID *string `json:"related_log_id,omitempty"`
	IsRead       bool    `json:"is_read"`
	CreatedAt    string  `json:"created_at"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ExistingLogID returns the conflicting log of a duplicate_log error.
func (e *APIError) ExistingLogID() string {
	id, _ := e.Details["existing_log_id"].(string)
	return id
}

// CreateLog creates a draft log owned by the authenticated user.
func (c *Client) CreateLog(ctx context.Context, in NewLog) (Log, error) {
	var resp Log
	err := c.do(ctx, http.MethodPost, "logs", in, &resp)
	return resp, err
}

// GetLog fetches a log by id.
func (c *Client) GetLog(ctx context.Context, id string) (Log, error) {
	var resp Log
	err := c.do(ctx, http.MethodGet, "logs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListLogs lists logs visible to the authenticated user.
func (c *Client) ListLogs(ctx context.Context, opts ListOptions) ([]Log, error) {
	var resp struct {
		Items []Log `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "logs"+opts.query(), nil, &resp)
	return resp.Items, err
}

// UpdateLog patches the given fields. A nil value clears an optional field.
func (c *Client) UpdateLog(ctx context.Context, id string, fields map[string]any) (Log, error) {
	var resp Log
	err := c.do(ctx, http.MethodPatch, "logs/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

func (c *Client) SubmitLog(ctx context.Context, id string) (Log, error) {
	var resp Log
	err := c.do(ctx, http.MethodPost, "logs/"+url.PathEscape(id)+"/submit", nil, &resp)
	return resp, err
}

func (c *Client) ApproveLog(ctx context.Context, id string) (Log, error) {
	var resp Log
	err := c.do(ctx, http.MethodPost, "logs/"+url.PathEscape(id)+"/approve", nil, &resp)
	return resp, err
}

func (c *Client) DeleteLog(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "logs/"+url.PathEscape(id), nil, nil)
}

// CheckDuplicate reports the log already recorded for date and project, if any.
func (c *Client) CheckDuplicate(ctx context.Context, date, projectID string) (string, bool, error) {
	var resp struct {
		Exists        bool   `json:"exists"`
		ExistingLogID string `json:"existing_log_id"`
	}
	q := url.Values{"date": {date}, "project_id": {projectID}}
	err := c.do(ctx, http.MethodGet, "logs/duplicate-check?"+q.Encode(), nil, &resp)
	return resp.ExistingLogID, resp.Exists, err
}

// UploadPhoto attaches an image to a log.
func (c *Client) UploadPhoto(ctx context.Context, id, filename, contentType string, r io.Reader, description string) (Log, error) {
	fields := map[string]string{}
	if description != "" {
		fields["description"] = description
	}
	return c.upload(ctx, "logs/"+url.PathEscape(id)+"/photos", filename, contentType, r, fields)
}

// UploadDocument attaches a document of the given type to a log.
func (c *Client) UploadDocument(ctx context.Context, id, filename, contentType string, r io.Reader, docType string) (Log, error) {
	fields := map[string]string{}
	if docType != "" {
		fields["type"] = docType
	}
	return c.upload(ctx, "logs/"+url.PathEscape(id)+"/documents", filename, contentType, r, fields)
}

// Report downloads the PDF report of a log.
func (c *Client) Report(ctx context.Context, id string) ([]byte, error) {
	return c.download(ctx, "logs/"+url.PathEscape(id)+"/report")
}

// Register downloads the xlsx register of the logs matching opts.
func (c *Client) Register(ctx context.Context, opts ListOptions) ([]byte, error) {
	return c.download(ctx, "reports/register"+opts.query())
}

// Notifications returns the authenticated user's inbox, newest first.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	endpoint := "notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Notification `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, endpoint, filename, contentType string, r io.Reader, fields map[string]string) (Log, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return Log{}, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return Log{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return Log{}, err
	}
	if err := mw.Close(); err != nil {
		return Log{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(endpoint), &buf)
	if err != nil {
		return Log{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.send(req)
	if err != nil {
		return Log{}, err
	}
	defer resp.Body.Close()
	var out Log
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func (c *Client) download(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(endpoint), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// send authenticates req and turns non-2xx responses into *APIError.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
