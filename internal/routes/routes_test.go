package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codetrace/internal/config"
	"codetrace/internal/logger"
	"codetrace/internal/middleware"
	"codetrace/internal/models"
	"codetrace/internal/repository/sqlite"
	"codetrace/internal/services"
	"codetrace/internal/services/extraction"
	"codetrace/internal/services/storage"
	"codetrace/internal/services/websocket"

	gws "github.com/gorilla/websocket"
)

type noExtractor struct{}

func (noExtractor) ExtractFile(context.Context, string) ([]models.ExtractedCode, error) {
	return nil, nil
}

func (noExtractor) Diagnose(context.Context, string) (*extraction.Diagnosis, error) {
	return &extraction.Diagnosis{}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *websocket.HubService) {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewDiscard()

	db, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hub := websocket.NewHubService(log)
	go hub.Run()
	t.Cleanup(hub.Stop)

	cfg := &config.Config{Password: "secret", ViewerPassword: "look", ProcessingWorkers: 1}
	m := services.NewManager(noExtractor{}, sqlite.NewCodeRepository(db), hub, cfg, log)
	t.Cleanup(m.Stop)

	static := filepath.Join(dir, "static")
	os.MkdirAll(static, 0755)
	os.WriteFile(filepath.Join(static, "login.html"), []byte("<form>login</form>"), 0644)
	os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>codes</h1>"), 0644)

	handler := SetupRoutes(Deps{
		Config:    cfg,
		Logger:    log,
		Manager:   m,
		Spool:     storage.NewSpoolService(filepath.Join(dir, "spool"), time.Hour, 1<<20, log),
		Sessions:  middleware.NewSessions(time.Hour),
		StaticDir: static,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, hub
}

func login(t *testing.T, srv *httptest.Server, password string) *http.Client {
	t.Helper()
	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Post(srv.URL+"/auth/login", "application/json", strings.NewReader(`{"password":"`+password+`"}`))
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login returned %d", resp.StatusCode)
	}
	return client
}

func do(t *testing.T, client *http.Client, method, url, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes_Unauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	if resp := do(t, client, http.MethodGet, srv.URL+"/api/codes", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for API, got %d", resp.StatusCode)
	}
	if resp := do(t, client, http.MethodGet, srv.URL+"/", ""); resp.StatusCode != http.StatusSeeOther {
		t.Errorf("Expected redirect for page, got %d", resp.StatusCode)
	}
	if resp := do(t, client, http.MethodGet, srv.URL+"/login", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected login page, got %d", resp.StatusCode)
	}
}

func TestRoutes_AdminAndViewer(t *testing.T) {
	srv, _ := newTestServer(t)
	admin := login(t, srv, "secret")
	viewer := login(t, srv, "look")

	if resp := do(t, admin, http.MethodPost, srv.URL+"/api/codes", `{"code":"CQ123456"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("Admin create: expected 201, got %d", resp.StatusCode)
	}
	if resp := do(t, viewer, http.MethodPost, srv.URL+"/api/codes", `{"code":"CQ654321"}`); resp.StatusCode != http.StatusForbidden {
		t.Errorf("Viewer create: expected 403, got %d", resp.StatusCode)
	}

	resp := do(t, viewer, http.MethodGet, srv.URL+"/api/codes", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Viewer list: expected 200, got %d", resp.StatusCode)
	}
	var data struct {
		Codes []models.Code `json:"codes"`
	}
	json.NewDecoder(resp.Body).Decode(&data)
	if len(data.Codes) != 1 || data.Codes[0].Code != "CQ123456" {
		t.Errorf("Unexpected listing %+v", data.Codes)
	}

	if resp := do(t, admin, http.MethodGet, srv.URL+"/", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected index page, got %d", resp.StatusCode)
	}
	if resp := do(t, admin, http.MethodGet, srv.URL+"/missing", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown page, got %d", resp.StatusCode)
	}

	if resp := do(t, viewer, http.MethodPost, srv.URL+"/auth/logout", ""); resp.StatusCode != http.StatusSeeOther {
		t.Errorf("Viewer logout: expected 303, got %d", resp.StatusCode)
	}
	if resp := do(t, viewer, http.MethodGet, srv.URL+"/api/codes", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("After logout: expected 401, got %d", resp.StatusCode)
	}
}

func TestRoutes_ImportEvents(t *testing.T) {
	srv, hub := newTestServer(t)
	admin := login(t, srv, "secret")

	base, _ := url.Parse(srv.URL)
	header := http.Header{}
	for _, c := range admin.Jar.Cookies(base) {
		header.Add("Cookie", c.String())
	}
	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", header)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Event listener never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "codes.txt")
	part.Write([]byte("CQ100001\nTY200002\n"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/import/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := admin.Do(req)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Import: expected 200, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("No event received: %v", err)
	}
	var event websocket.Event
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("Invalid event %q: %v", msg, err)
	}
	if event.Type != "import.finished" || event.BatchID == "" {
		t.Errorf("Unexpected event %+v", event)
	}
}
