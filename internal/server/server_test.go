package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"cropline/internal/config"
	"cropline/internal/db"
	"cropline/internal/domain"
	"cropline/internal/engine"
	"cropline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var actorHeaders = map[string]string{"X-Actor-Id": "tester"}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("farm-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitFarm(context.Background(), "farm-1", "Test Farm", "", "tester"); err != nil {
		t.Fatalf("init farm: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", string(data), err)
	}
	return envelope.Error.Code
}

// setupField creates a parcel and a crop type and returns their ids.
func setupField(t *testing.T, srv *testServer) (parcelID, cropTypeID int64) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/farms/farm-1/parcels", map[string]any{
		"code": "P1",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create parcel status %d: %s", res.StatusCode, string(data))
	}
	var parcel domain.LandParcel
	if err := json.Unmarshal(data, &parcel); err != nil {
		t.Fatalf("unmarshal parcel: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/crop-types", map[string]any{
		"code": "maize", "name": "Maize", "category": "cereal",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upsert crop type status %d: %s", res.StatusCode, string(data))
	}
	var crop domain.CropType
	if err := json.Unmarshal(data, &crop); err != nil {
		t.Fatalf("unmarshal crop type: %v", err)
	}
	return parcel.ID, crop.ID
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/cycles", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	// legacy actor header passes when enabled
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cycles", nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("legacy header status %d: %s", res.StatusCode, string(data))
	}
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "alex",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("unmarshal token: %v (%s)", err, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cycles", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer request status %d: %s", res.StatusCode, string(data))
	}
	// garbage token is rejected
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cycles", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestCycleLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	parcelID, cropTypeID := setupField(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/farms/farm-1/cycles", map[string]any{
		"land_parcel_id":     parcelID,
		"crop_type_id":       cropTypeID,
		"planned_start_date": "2025-01-10",
		"planned_end_date":   "2025-03-01",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create cycle status %d: %s", res.StatusCode, string(data))
	}
	var cycle domain.CropCycle
	if err := json.Unmarshal(data, &cycle); err != nil {
		t.Fatalf("unmarshal cycle: %v", err)
	}
	if cycle.CycleCode != "P1-2025-001" {
		t.Fatalf("cycle code = %s", cycle.CycleCode)
	}

	// overlapping plan conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/farms/farm-1/cycles", map[string]any{
		"land_parcel_id":     parcelID,
		"crop_type_id":       cropTypeID,
		"planned_start_date": "2025-02-01",
		"planned_end_date":   "2025-02-15",
	}, actorHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("overlap status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "overlapping_cycle" {
		t.Fatalf("overlap error code = %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/cycles/"+itoa(cycle.ID)+"/activate", map[string]any{
		"actual_start_date": "2025-01-12",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activate status %d: %s", res.StatusCode, string(data))
	}

	// activating again is an invalid transition
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/cycles/"+itoa(cycle.ID)+"/activate", nil, actorHeaders)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("re-activate status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_transition" {
		t.Fatalf("re-activate error code = %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/cycles/"+itoa(cycle.ID)+"/complete", map[string]any{
		"actual_end_date": "2025-03-05",
		"quality_rating":  "good",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var completed domain.CropCycle
	if err := json.Unmarshal(data, &completed); err != nil {
		t.Fatalf("unmarshal completed: %v", err)
	}
	if completed.Status != domain.CycleCompleted {
		t.Fatalf("status = %s", completed.Status)
	}

	// closed cycles cannot be deleted
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/cycles/"+itoa(cycle.ID), nil, actorHeaders)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("delete completed status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_deletable" {
		t.Fatalf("delete error code = %s", code)
	}
}

func TestActiveCycleConflictOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	parcelID, cropTypeID := setupField(t, srv)

	var ids []int64
	for _, window := range [][2]string{{"2025-01-10", "2025-03-01"}, {"2025-03-02", "2025-04-01"}} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/farms/farm-1/cycles", map[string]any{
			"land_parcel_id":     parcelID,
			"crop_type_id":       cropTypeID,
			"planned_start_date": window[0],
			"planned_end_date":   window[1],
		}, actorHeaders)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create cycle status %d: %s", res.StatusCode, string(data))
		}
		var c domain.CropCycle
		if err := json.Unmarshal(data, &c); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, c.ID)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/cycles/"+itoa(ids[0])+"/activate", nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activate first status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/cycles/"+itoa(ids[1])+"/activate", nil, actorHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("activate second status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "active_cycle_exists" {
		t.Fatalf("error code = %s", code)
	}
	// planning another cycle on the parcel is rejected too, however far out
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/farms/farm-1/cycles", map[string]any{
		"land_parcel_id":     parcelID,
		"crop_type_id":       cropTypeID,
		"planned_start_date": "2025-08-01",
		"planned_end_date":   "2025-09-01",
	}, actorHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("plan on active parcel status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "active_cycle_exists" {
		t.Fatalf("plan on active parcel error code = %s", code)
	}
}

func TestStageStartBlockedOnPlannedCycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	parcelID, cropTypeID := setupField(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/farms/farm-1/cycles", map[string]any{
		"land_parcel_id":     parcelID,
		"crop_type_id":       cropTypeID,
		"planned_start_date": "2025-01-10",
		"planned_end_date":   "2025-03-01",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create cycle status %d: %s", res.StatusCode, string(data))
	}
	var cycle domain.CropCycle
	if err := json.Unmarshal(data, &cycle); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cycles/"+itoa(cycle.ID)+"/stages", nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list stages status %d: %s", res.StatusCode, string(data))
	}
	var stages []domain.CropCycleStage
	if err := json.Unmarshal(data, &stages); err != nil || len(stages) == 0 {
		t.Fatalf("unmarshal stages: %v (%s)", err, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/stages/"+itoa(stages[0].ID)+"/start", nil, actorHeaders)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("start stage status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "cycle_not_active" {
		t.Fatalf("start stage error code = %s", code)
	}
}

func TestActivityImmutableOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	parcelID, _ := setupField(t, srv)

	var at domain.ActivityType
	{
		res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/activity-types", nil, actorHeaders)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list activity types status %d: %s", res.StatusCode, string(data))
		}
		var types []domain.ActivityType
		if err := json.Unmarshal(data, &types); err != nil || len(types) == 0 {
			t.Fatalf("unmarshal activity types: %v (%s)", err, string(data))
		}
		at = types[0]
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"activity_type_id": at.ID,
		"land_parcel_id":   parcelID,
		"description":      "irrigated the north rows",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record activity status %d: %s", res.StatusCode, string(data))
	}
	var a domain.ActivityLog
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/activities/"+itoa(a.ID), map[string]any{
		"description": "rewritten history",
	}, actorHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("patch activity status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "immutable_record" {
		t.Fatalf("patch error code = %s", code)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/activities/"+itoa(a.ID), nil, actorHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("delete activity status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "immutable_record" {
		t.Fatalf("delete error code = %s", code)
	}

	// the record is still there, unchanged
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/activities/"+itoa(a.ID), nil, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get activity status %d: %s", res.StatusCode, string(data))
	}
	var got domain.ActivityLog
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Description != "irrigated the north rows" {
		t.Fatalf("description = %q", got.Description)
	}
}

func TestNotFoundMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/cycles/99999", nil, actorHeaders)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("error code = %s", code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
