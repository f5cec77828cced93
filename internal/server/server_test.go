package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"reviewdesk/internal/db"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/engine"
	"reviewdesk/internal/migrate"
)

var (
	adminHeaders  = map[string]string{"X-Actor-Id": "alice", "X-Actor-Role": "admin"}
	clientHeaders = map[string]string{"X-Actor-Id": "carol", "X-Actor-Role": "client"}
)

type testServer struct {
	URL    string
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
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	ctx := context.Background()
	if _, err := e.InitProject(ctx, "proj-1", "Acme rebrand", "alice"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	if _, err := e.AddMember(ctx, "proj-1", "carol", domain.RoleClient, "alice"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{AllowLegacyActorHeader: true}})
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
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestDeliverableLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/deliverables", map[string]any{
		"title": "Homepage mockups",
		"type":  "design",
		"files": []map[string]any{{"url": "https://cdn.example.com/mock.png", "name": "mock.png"}},
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created DeliverableResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Status != "draft" || created.Version != 1 {
		t.Fatalf("created: status=%s version=%d", created.Status, created.Version)
	}
	id := created.ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+id+"/submit", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+id+"/request-changes", map[string]any{
		"feedback": "Make the logo bigger",
	}, clientHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("request changes: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+id+"/submit", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resubmit: %d %s", res.StatusCode, string(data))
	}
	var resubmitted DeliverableResponse
	_ = json.Unmarshal(data, &resubmitted)
	if resubmitted.Version != 2 {
		t.Fatalf("resubmit must bump version, got %d", resubmitted.Version)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+id+"/approve", map[string]any{
		"message": "Looks great",
	}, clientHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+id+"/deliver", map[string]any{
		"delivery_notes": "Final package",
		"final_files":    []map[string]any{{"url": "https://cdn.example.com/final.zip", "name": "final.zip"}},
	}, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deliver: %d %s", res.StatusCode, string(data))
	}
	var delivered DeliverableResponse
	_ = json.Unmarshal(data, &delivered)
	if delivered.Status != "delivered" || delivered.DeliveredAt == nil {
		t.Fatalf("delivered: %+v", delivered)
	}
	if len(delivered.Files) != 2 {
		t.Fatalf("final files must be appended, got %d", len(delivered.Files))
	}

	// terminal state
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+id+"/submit", nil, adminHeaders)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_transition" {
		t.Fatalf("submit after deliver: %d %s", res.StatusCode, string(data))
	}

	// review history
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/deliverables/"+id+"/notes", nil, clientHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notes: %d %s", res.StatusCode, string(data))
	}
	var notes []ReviewNoteResponse
	if err := json.Unmarshal(data, &notes); err != nil {
		t.Fatalf("unmarshal notes: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("want 3 notes (request_changes, approve, deliver), got %d", len(notes))
	}
	if notes[0].Action != "request_changes" || notes[0].Note != "Make the logo bigger" {
		t.Fatalf("first note: %+v", notes[0])
	}
}

func TestBlankFeedbackOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/deliverables", map[string]any{
		"title": "Brief",
	}, adminHeaders)
	var created DeliverableResponse
	_ = json.Unmarshal(data, &created)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+created.ID+"/submit", nil, adminHeaders)

	for _, feedback := range []string{"", "   "} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+created.ID+"/request-changes", map[string]any{
			"feedback": feedback,
		}, clientHeaders)
		if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "validation_failed" {
			t.Fatalf("blank feedback %q: %d %s", feedback, res.StatusCode, string(data))
		}
	}

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/deliverables/"+created.ID, nil, clientHeaders)
	var after DeliverableResponse
	_ = json.Unmarshal(data, &after)
	if after.Status != "pending_review" {
		t.Fatalf("status after rejected feedback: %s", after.Status)
	}
}

func TestRoleGatingOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/deliverables", map[string]any{
		"title": "Brief",
	}, adminHeaders)
	var created DeliverableResponse
	_ = json.Unmarshal(data, &created)

	// client cannot approve a draft
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+created.ID+"/approve", map[string]any{}, clientHeaders)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_transition" {
		t.Fatalf("approve draft: %d %s", res.StatusCode, string(data))
	}

	// client cannot create deliverables
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/deliverables", map[string]any{
		"title": "Sneaky",
	}, clientHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("client create: %d %s", res.StatusCode, string(data))
	}

	// no credentials at all
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/deliverables", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: %d %s", res.StatusCode, string(data))
	}
}

func TestInboxOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/deliverables", map[string]any{
		"title": "Logo pack",
	}, adminHeaders)
	var created DeliverableResponse
	_ = json.Unmarshal(data, &created)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/deliverables/"+created.ID+"/submit", nil, adminHeaders)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/inbox", nil, clientHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("client inbox: %d %s", res.StatusCode, string(data))
	}
	var inbox []InboxItemResponse
	if err := json.Unmarshal(data, &inbox); err != nil {
		t.Fatalf("unmarshal inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Deliverable.ID != created.ID {
		t.Fatalf("client inbox: %+v", inbox)
	}

	// nothing waiting on the admin yet
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/inbox", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin inbox: %d %s", res.StatusCode, string(data))
	}
	var adminInbox []InboxItemResponse
	_ = json.Unmarshal(data, &adminInbox)
	if len(adminInbox) != 0 {
		t.Fatalf("admin inbox should be empty, got %+v", adminInbox)
	}
}
