package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"sitelog/internal/config"
	"sitelog/internal/db"
	"sitelog/internal/domain"
	"sitelog/internal/engine"
	"sitelog/internal/migrate"
	"sitelog/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Storage.Dir = t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	const stamp = "2024-01-01T00:00:00Z"
	for _, u := range []domain.User{
		{ID: "tl-1", Name: "Tess Leader", Role: domain.RoleTeamLeader, CreatedAt: stamp},
		{ID: "tl-2", Name: "Tom Other", Role: domain.RoleTeamLeader, CreatedAt: stamp},
		{ID: "m-1", Name: "Mia Manager", Role: domain.RoleManager, CreatedAt: stamp},
	} {
		if err := e.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := e.Repo.InsertProject(ctx, domain.Project{ID: "proj-1", Name: "Harbor Tower", Address: "1 Quay St", CreatedAt: stamp}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	if err := e.Repo.InsertEmployee(ctx, domain.Employee{ID: "e-1", Name: "Ana", CreatedAt: stamp}); err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
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

func bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
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

func doUpload(t *testing.T, client *http.Client, url, filename, contentType string, content []byte, fields, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(content)
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
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

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func createBody(date string) map[string]any {
	return map[string]any{
		"date":             date,
		"start_time":       date + "T07:00:00Z",
		"end_time":         date + "T15:30:00Z",
		"work_description": "Pour level 3 slab",
		"weather":          "Sunny",
		"project_id":       "proj-1",
		"employees":        []string{"e-1"},
		"materials_used": []map[string]any{
			{"name": "Concrete", "quantity": 12.5, "unit": "m3"},
		},
	}
}

func createLog(t *testing.T, srv *testServer, date, userID string) domain.Log {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/logs", createBody(date), bearer(t, userID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create log status %d: %s", res.StatusCode, string(data))
	}
	var l domain.Log
	if err := json.Unmarshal(data, &l); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	return l
}

func TestLogLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created := createLog(t, srv, "2024-03-01", "tl-1")
	if created.Status != domain.StatusDraft || created.TeamLeaderID != "tl-1" {
		t.Fatalf("unexpected created log: %+v", created)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/logs", createBody("2024-03-01"), bearer(t, "tl-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d: %s", res.StatusCode, string(data))
	}
	apiErr := decodeError(t, data)
	if apiErr.Code != "duplicate_log" || apiErr.Details["existing_log_id"] != created.ID {
		t.Fatalf("unexpected duplicate error: %+v", apiErr)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/logs/duplicate-check?date=2024-03-01&project_id=proj-1", nil, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("duplicate check status %d: %s", res.StatusCode, string(data))
	}
	var check DuplicateCheckResponse
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("unmarshal check: %v", err)
	}
	if !check.Exists || check.ExistingLogID != created.ID {
		t.Fatalf("unexpected duplicate check: %+v", check)
	}

	logURL := srv.URL + "/v0/logs/" + created.ID
	res, data = doJSON(t, client, http.MethodPost, logURL+"/approve", nil, bearer(t, "m-1"))
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Code != "invalid_status" {
		t.Fatalf("expected invalid_status approving a draft, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, logURL+"/submit", nil, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, logURL+"/approve", nil, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 approving as team leader, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, logURL+"/approve", nil, bearer(t, "m-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	var approved domain.Log
	if err := json.Unmarshal(data, &approved); err != nil {
		t.Fatalf("unmarshal approved: %v", err)
	}
	if approved.Status != domain.StatusApproved || approved.ApprovedBy == nil || *approved.ApprovedBy != "m-1" {
		t.Fatalf("unexpected approved log: %+v", approved)
	}

	res, data = doJSON(t, client, http.MethodPatch, logURL, map[string]any{"work_description": "late edit"}, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 editing approved log, got %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data); got.Code != "invalid_status" || got.Details["status"] != domain.StatusApproved {
		t.Fatalf("unexpected conflict: %+v", got)
	}

	res, data = doJSON(t, client, http.MethodDelete, logURL, nil, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 deleting approved log as owner, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, logURL, nil, bearer(t, "m-1"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 deleting as manager, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, logURL, nil, bearer(t, "m-1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestCreateValidationEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/logs", map[string]any{
		"date":           "03/01/2024",
		"project_id":     "proj-1",
		"materials_used": []map[string]any{{"name": "Sand", "unit": "t"}},
	}, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	apiErr := decodeError(t, data)
	if apiErr.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %+v", apiErr)
	}
	fields, ok := apiErr.Details["fields"].(map[string]any)
	if !ok || fields["materials_used[0].quantity"] == nil {
		t.Fatalf("expected quantity field error, got %+v", apiErr.Details)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/logs", map[string]any{
		"date":       "03/01/2024",
		"project_id": "proj-1",
	}, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	fields, _ = decodeError(t, data).Details["fields"].(map[string]any)
	for _, key := range []string{"date", "start_time", "end_time", "work_description"} {
		if fields[key] == nil {
			t.Fatalf("expected %s in field errors, got %+v", key, fields)
		}
	}
}

func TestPatchDistinguishesNullFromAbsent(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createLog(t, srv, "2024-03-02", "tl-1")
	logURL := srv.URL + "/v0/logs/" + created.ID

	res, data := doJSON(t, client, http.MethodPatch, logURL, `{"issues_encountered":"Crane delayed"}`, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var l domain.Log
	json.Unmarshal(data, &l)
	if l.Weather == nil || *l.Weather != "Sunny" || l.IssuesEncountered == nil {
		t.Fatalf("expected weather untouched and issues set: %+v", l)
	}
	if len(l.Employees) != 1 || len(l.MaterialsUsed) != 1 {
		t.Fatalf("expected lists untouched: %+v", l)
	}

	res, data = doJSON(t, client, http.MethodPatch, logURL, `{"weather":null,"employees":null}`, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch null status %d: %s", res.StatusCode, string(data))
	}
	l = domain.Log{}
	json.Unmarshal(data, &l)
	if l.Weather != nil {
		t.Fatalf("expected weather cleared, got %q", *l.Weather)
	}
	if len(l.Employees) != 0 || len(l.MaterialsUsed) != 1 || l.IssuesEncountered == nil {
		t.Fatalf("unexpected merge result: %+v", l)
	}

	res, data = doJSON(t, client, http.MethodPatch, logURL, `{"work_description":"  "}`, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank description, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, logURL, `{"work_description":"x"}`, bearer(t, "tl-2"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d: %s", res.StatusCode, string(data))
	}
}

func TestUploads(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createLog(t, srv, "2024-03-03", "tl-1")
	logURL := srv.URL + "/v0/logs/" + created.ID

	res, data := doUpload(t, client, logURL+"/photos", "slab.JPG", "image/jpeg", []byte("\xff\xd8\xff jpeg"),
		map[string]string{"description": "North edge"}, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("photo upload status %d: %s", res.StatusCode, string(data))
	}
	var l domain.Log
	if err := json.Unmarshal(data, &l); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	if len(l.Photos) != 1 || l.Photos[0].OriginalName != "slab.JPG" || l.Photos[0].Description == nil {
		t.Fatalf("unexpected photos: %+v", l.Photos)
	}
	if !strings.HasSuffix(l.Photos[0].Path, ".jpg") {
		t.Fatalf("expected lower-cased extension, got %s", l.Photos[0].Path)
	}

	res, data = doUpload(t, client, logURL+"/documents", "bundle.zip", "application/zip", []byte("PK"), nil, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for zip, got %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data); got.Code != "attachment_rejected" || got.Details["class"] != "document" {
		t.Fatalf("unexpected rejection: %+v", got)
	}

	res, data = doUpload(t, client, logURL+"/documents", "delivery.pdf", "application/pdf", []byte("%PDF-1.4"),
		map[string]string{"type": domain.DocumentDeliveryNote}, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("document upload status %d: %s", res.StatusCode, string(data))
	}
	l = domain.Log{}
	json.Unmarshal(data, &l)
	if len(l.Documents) != 1 || l.Documents[0].Type != domain.DocumentDeliveryNote || len(l.Photos) != 1 {
		t.Fatalf("unexpected attachments: %+v", l)
	}

	res, _ = doUpload(t, client, logURL+"/photos", "x.jpg", "image/jpeg", []byte("x"), nil, bearer(t, "tl-2"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner upload, got %d", res.StatusCode)
	}
}

func TestReportDownloads(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createLog(t, srv, "2024-03-04", "tl-1")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/logs/"+created.ID+"/report", nil, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); ct != contentTypePDF {
		t.Fatalf("expected pdf content type, got %s", ct)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected pdf bytes")
	}
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, "daily-log-2024-03-04-") {
		t.Fatalf("unexpected content disposition %q", cd)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/logs/"+created.ID+"/report", nil, bearer(t, "tl-2"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for another team leader, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/register?startDate=2024-03-01", nil, bearer(t, "m-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); ct != contentTypeXLSX {
		t.Fatalf("expected xlsx content type, got %s", ct)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatalf("expected zip container")
	}
}

func TestListIsScopedToTeamLeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createLog(t, srv, "2024-03-05", "tl-1")
	createLog(t, srv, "2024-03-06", "tl-1")

	list := func(userID, query string) []domain.Log {
		t.Helper()
		res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/logs"+query, nil, bearer(t, userID))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list status %d: %s", res.StatusCode, string(data))
		}
		var out LogListResponse
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal list: %v", err)
		}
		return out.Items
	}

	if got := list("tl-2", "?teamLeader=tl-1"); len(got) != 0 {
		t.Fatalf("expected team leader filter to be pinned, got %d logs", len(got))
	}
	got := list("m-1", "?teamLeader=tl-1")
	if len(got) != 2 || got[0].Date != "2024-03-06" {
		t.Fatalf("expected two logs newest first, got %+v", got)
	}
	if got := list("m-1", "?searchTerm=SLAB&endDate=2024-03-05"); len(got) != 1 {
		t.Fatalf("expected one match, got %d", len(got))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/logs?status=archived", nil, bearer(t, "m-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Code != "unauthorized" {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-User-Id": "m-1"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected user header to be ignored, got %d", res.StatusCode)
	}

	key, err := repo.GenerateAPIKey("m-1")
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := srv.Engine.Repo.SetUserAPIKey(context.Background(), "m-1", key); err != nil {
		t.Fatalf("set key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.UserID != "m-1" || who.Role != domain.RoleManager || who.Source != "api_key" || len(who.Permissions) == 0 {
		t.Fatalf("unexpected principal: %+v", who)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key + "0"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", res.StatusCode)
	}
}

func TestNotificationsInbox(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	for i, userID := range []string{"tl-1", "tl-2"} {
		if err := srv.Engine.Repo.InsertNotification(ctx, domain.Notification{
			ID:        "n-" + userID,
			UserID:    userID,
			Type:      "log.duplicate_attempt",
			Title:     "Duplicate log",
			Content:   "already exists",
			CreatedAt: time.Date(2024, 3, 1, 9, i, 0, 0, time.UTC).Format(time.RFC3339),
		}); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/notifications", nil, bearer(t, "tl-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications status %d: %s", res.StatusCode, string(data))
	}
	var out NotificationListResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].ID != "n-tl-1" {
		t.Fatalf("expected only the caller's notification, got %+v", out.Items)
	}
}

func TestOpenAPIIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(data))
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	for _, p := range []string{"/v0/logs", "/v0/logs/{id}", "/v0/logs/{id}/report", "/v0/reports/register"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("expected %s in openapi paths", p)
		}
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	const n = 8
	bodies := make([][]byte, n)
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			statuses[i] = res.StatusCode
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := range bodies {
		if statuses[i] != http.StatusOK {
			t.Fatalf("request %d: status %d", i, statuses[i])
		}
		if !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("request %d returned a different document", i)
		}
	}
}
