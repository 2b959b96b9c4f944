package croplinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Cropline HTTP API client.
type Client struct {
	BaseURL     string
	FarmID      string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, farmID string) *Client {
	return &Client{
		BaseURL: baseURL,
		FarmID:  farmID,
		Timeout: 10 * time.Second,
	}
}

// CropCycle represents the API crop cycle model (partial).
type CropCycle struct {
	ID               int64    `json:"id"`
	FarmID           string   `json:"farm_id"`
	LandParcelID     int64    `json:"land_parcel_id"`
	CropTypeID       int64    `json:"crop_type_id"`
	CycleCode        string   `json:"cycle_code"`
	Status           string   `json:"status"`
	PlannedStartDate string   `json:"planned_start_date"`
	PlannedEndDate   string   `json:"planned_end_date"`
	ActualStartDate  *string  `json:"actual_start_date,omitempty"`
	ActualEndDate    *string  `json:"actual_end_date,omitempty"`
	YieldValue       *float64 `json:"yield_value,omitempty"`
	QualityRating    string   `json:"quality_rating,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// Stage represents a phase inside a cycle.
type Stage struct {
	ID            int64  `json:"id"`
	CropCycleID   int64  `json:"crop_cycle_id"`
	StageName     string `json:"stage_name"`
	SequenceOrder int    `json:"sequence_order"`
	Status        string `json:"status"`
}

// Activity represents an append-only activity log entry.
type Activity struct {
	ID           int64  `json:"id"`
	FarmID       string `json:"farm_id"`
	CropCycleID  *int64 `json:"crop_cycle_id,omitempty"`
	LandParcelID *int64 `json:"land_parcel_id,omitempty"`
	ActivityDate string `json:"activity_date"`
	Description  string `json:"description"`
	CreatedAt    string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	FarmID     string         `json:"farm_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedCycles wraps cycle list responses with cursors.
type PaginatedCycles struct {
	Items      []CropCycle `json:"cycles"`
	NextCursor string      `json:"next_cursor"`
}

// PaginatedActivities wraps activity list responses with cursors.
type PaginatedActivities struct {
	Items      []Activity `json:"activities"`
	NextCursor string     `json:"next_cursor"`
}

// PaginatedEvents wraps event list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"events"`
	NextCursor int64   `json:"next_cursor"`
}

// PlanCycle creates a planned crop cycle on a parcel.
func (c *Client) PlanCycle(ctx context.Context, landParcelID, cropTypeID int64, plannedStart, plannedEnd string) (CropCycle, error) {
	body := map[string]any{
		"land_parcel_id":     landParcelID,
		"crop_type_id":       cropTypeID,
		"planned_start_date": plannedStart,
		"planned_end_date":   plannedEnd,
	}
	var resp CropCycle
	err := c.do(ctx, http.MethodPost, c.farmPath("cycles"), body, &resp)
	return resp, err
}

// GetCycle fetches a cycle by id.
func (c *Client) GetCycle(ctx context.Context, id int64) (CropCycle, error) {
	var resp CropCycle
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/cycles/%d", id), nil, &resp)
	return resp, err
}

// ListCycles returns cycles for the client's farm, optionally filtered by status.
func (c *Client) ListCycles(ctx context.Context, status string, limit int) (PaginatedCycles, error) {
	endpoint := "v0/cycles?farm_id=" + url.QueryEscape(c.FarmID)
	if status != "" {
		endpoint += "&status=" + url.QueryEscape(status)
	}
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var resp PaginatedCycles
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ActivateCycle moves a planned cycle to active.
func (c *Client) ActivateCycle(ctx context.Context, id int64, actualStart string) (CropCycle, error) {
	body := map[string]any{}
	if actualStart != "" {
		body["actual_start_date"] = actualStart
	}
	var resp CropCycle
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/cycles/%d/activate", id), body, &resp)
	return resp, err
}

// CompleteCycle closes an active cycle with a harvest outcome.
func (c *Client) CompleteCycle(ctx context.Context, id int64, actualEnd string, yieldValue *float64, yieldUnitID *int64, quality string) (CropCycle, error) {
	body := map[string]any{}
	if actualEnd != "" {
		body["actual_end_date"] = actualEnd
	}
	if yieldValue != nil {
		body["yield_value"] = *yieldValue
	}
	if yieldUnitID != nil {
		body["yield_unit_id"] = *yieldUnitID
	}
	if quality != "" {
		body["quality_rating"] = quality
	}
	var resp CropCycle
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/cycles/%d/complete", id), body, &resp)
	return resp, err
}

// FailCycle marks an active cycle as failed.
func (c *Client) FailCycle(ctx context.Context, id int64, reason string) (CropCycle, error) {
	var resp CropCycle
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/cycles/%d/fail", id), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// AbandonCycle abandons a planned or active cycle.
func (c *Client) AbandonCycle(ctx context.Context, id int64, reason string) (CropCycle, error) {
	var resp CropCycle
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/cycles/%d/abandon", id), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Stages returns a cycle's stages in order.
func (c *Client) Stages(ctx context.Context, cycleID int64) ([]Stage, error) {
	var resp []Stage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/cycles/%d/stages", cycleID), nil, &resp)
	return resp, err
}

// StartStage moves a pending stage to in_progress.
func (c *Client) StartStage(ctx context.Context, stageID int64, actualStart string) (Stage, error) {
	body := map[string]any{}
	if actualStart != "" {
		body["actual_start_date"] = actualStart
	}
	var resp Stage
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/stages/%d/start", stageID), body, &resp)
	return resp, err
}

// CompleteStage completes an in-progress stage.
func (c *Client) CompleteStage(ctx context.Context, stageID int64, actualEnd string) (Stage, error) {
	body := map[string]any{}
	if actualEnd != "" {
		body["actual_end_date"] = actualEnd
	}
	var resp Stage
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/stages/%d/complete", stageID), body, &resp)
	return resp, err
}

// SkipStage skips a pending stage.
func (c *Client) SkipStage(ctx context.Context, stageID int64, reason string) (Stage, error) {
	var resp Stage
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/stages/%d/skip", stageID), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// RecordActivity appends an activity against a cycle or parcel.
func (c *Client) RecordActivity(ctx context.Context, activityTypeID int64, cycleID, parcelID *int64, date, description string) (Activity, error) {
	body := map[string]any{
		"activity_type_id": activityTypeID,
		"description":      description,
	}
	if cycleID != nil {
		body["crop_cycle_id"] = *cycleID
	}
	if parcelID != nil {
		body["land_parcel_id"] = *parcelID
	}
	if date != "" {
		body["activity_date"] = date
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, "v0/activities", body, &resp)
	return resp, err
}

// Activities returns activities for the client's farm.
func (c *Client) Activities(ctx context.Context, cycleID int64, limit int) (PaginatedActivities, error) {
	endpoint := "v0/activities?farm_id=" + url.QueryEscape(c.FarmID)
	if cycleID > 0 {
		endpoint += fmt.Sprintf("&crop_cycle_id=%d", cycleID)
	}
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var resp PaginatedActivities
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, 0)
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor int64) (PaginatedEvents, error) {
	endpoint := "v0/events?farm_id=" + url.QueryEscape(c.FarmID)
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	if cursor > 0 {
		endpoint += fmt.Sprintf("&cursor=%d", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) farmPath(p string) string {
	farm := url.PathEscape(c.FarmID)
	return fmt.Sprintf("v0/farms/%s/%s", farm, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
