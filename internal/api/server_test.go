package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/org/vaultgate/internal/credential"
	"github.com/org/vaultgate/internal/vault"
	"github.com/org/vaultgate/pkg/models"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	creds   *credential.Store
	vault   *vault.Vault
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	v, err := vault.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening vault: %v", err)
	}
	store := credential.NewStore(nil, nil)
	srv := NewServer(store, v, Config{})
	return &testEnv{
		server:  srv,
		handler: srv.BuildRouter(),
		creds:   store,
		vault:   v,
	}
}

func (e *testEnv) issue(t *testing.T, name string, caps models.CapabilitySet) *models.Credential {
	t.Helper()
	c, err := e.creds.Issue(context.Background(), name, caps)
	if err != nil {
		t.Fatalf("issuing credential: %v", err)
	}
	return c
}

func (e *testEnv) do(method, target, secret, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/v1/sys/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health without auth = %d", rec.Code)
	}
}

func TestZeroCredentialsFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	// No issued credentials: every authenticated route rejects, even with a
	// plausible-looking bearer value.
	for _, target := range []string{"/v1/vault/files/note.md", "/v1/vault/list", "/v1/activity"} {
		rec := env.do(http.MethodGet, target, "vgt_whatever", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with zero credentials = %d, want 401", target, rec.Code)
		}
	}
}

func TestRejectionIsUniform(t *testing.T) {
	env := newTestEnv(t)
	env.issue(t, "agent", models.AllCapabilities())

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"bare value", "Bearer"},
		{"unknown secret", "Bearer vgt_not-issued"},
	}

	var bodies []string
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/vault/list", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}

	// Every rejection cause must be indistinguishable to the caller.
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("rejection bodies differ: %q vs %q", bodies[0], bodies[i])
		}
	}
}

func TestFileWriteThenRead(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())

	rec := env.do(http.MethodPut, "/v1/vault/files/notes/hello.md", c.Secret, `{"content":"# Hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/v1/vault/files/notes/hello.md", c.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Content string `json:"content"`
	}
	decodeBody(t, rec, &got)
	if got.Content != "# Hello" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestBlockedDirectoryReadsLookMissing(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	c.Policy = models.DirectoryPolicy{
		Rules:          []models.DirectoryRule{{Path: "private", Allowed: false}},
		RootPermission: true,
	}
	if err := env.vault.Write(context.Background(), "private/secret.md", []byte("hidden")); err != nil {
		t.Fatal(err)
	}

	blocked := env.do(http.MethodGet, "/v1/vault/files/private/secret.md", c.Secret, "")
	missing := env.do(http.MethodGet, "/v1/vault/files/private/ghost.md", c.Secret, "")

	if blocked.Code != http.StatusNotFound {
		t.Errorf("blocked read = %d, want 404", blocked.Code)
	}
	// A denied path and an absent path must be indistinguishable.
	if blocked.Code != missing.Code || blocked.Body.String() != missing.Body.String() {
		t.Errorf("blocked response %q differs from missing response %q",
			blocked.Body.String(), missing.Body.String())
	}
}

func TestFrontmatterAllowOverridesBlockedDirectory(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	c.Policy = models.DirectoryPolicy{
		Rules:          []models.DirectoryRule{{Path: "private", Allowed: false}},
		RootPermission: true,
	}
	ctx := context.Background()
	if err := env.vault.Write(ctx, "private/shared.md", []byte("---\nmcp_access: true\n---\nshared")); err != nil {
		t.Fatal(err)
	}
	if err := env.vault.Write(ctx, "private/plain.md", []byte("plain")); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(http.MethodGet, "/v1/vault/files/private/shared.md", c.Secret, ""); rec.Code != http.StatusOK {
		t.Errorf("note with access override = %d, want 200", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/v1/vault/files/private/plain.md", c.Secret, ""); rec.Code != http.StatusNotFound {
		t.Errorf("sibling without override = %d, want 404", rec.Code)
	}
}

func TestFrontmatterDenyOverridesAllowedDirectory(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	if err := env.vault.Write(context.Background(), "notes/sealed.md", []byte("---\nmcp_access: false\n---\nsealed")); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(http.MethodGet, "/v1/vault/files/notes/sealed.md", c.Secret, ""); rec.Code != http.StatusNotFound {
		t.Errorf("note with access=false = %d, want 404", rec.Code)
	}
}

func TestReadonlyNoteRejectsMutation(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	if err := env.vault.Write(context.Background(), "pinned.md", []byte("---\nmcp_readonly: true\n---\nkeep")); err != nil {
		t.Fatal(err)
	}

	// Still readable.
	if rec := env.do(http.MethodGet, "/v1/vault/files/pinned.md", c.Secret, ""); rec.Code != http.StatusOK {
		t.Errorf("readonly note read = %d, want 200", rec.Code)
	}

	for _, m := range []string{http.MethodPut, http.MethodPost} {
		rec := env.do(m, "/v1/vault/files/pinned.md", c.Secret, `{"content":"overwrite"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s readonly note = %d, want 403", m, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "read-only") {
			t.Errorf("%s readonly rejection should say read-only: %s", m, rec.Body.String())
		}
	}

	if rec := env.do(http.MethodDelete, "/v1/vault/files/pinned.md", c.Secret, ""); rec.Code != http.StatusForbidden {
		t.Errorf("delete of readonly note = %d, want 403", rec.Code)
	}
}

func TestCapabilityGating(t *testing.T) {
	env := newTestEnv(t)
	reader := env.issue(t, "reader", models.CapabilitySet{FileAccess: true})

	if rec := env.do(http.MethodGet, "/v1/vault/list", reader.Secret, ""); rec.Code != http.StatusOK {
		t.Errorf("granted capability = %d, want 200", rec.Code)
	}
	if rec := env.do(http.MethodPut, "/v1/vault/files/x.md", reader.Secret, `{"content":"x"}`); rec.Code != http.StatusForbidden {
		t.Errorf("mutation without capability = %d, want 403", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/v1/search?q=x", reader.Secret, ""); rec.Code != http.StatusForbidden {
		t.Errorf("search without capability = %d, want 403", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/v1/sys/credentials", reader.Secret, `{"name":"sneaky"}`); rec.Code != http.StatusForbidden {
		t.Errorf("issue without manage capability = %d, want 403", rec.Code)
	}
}

func TestListFiltersBlockedEntries(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	c.Policy = models.DirectoryPolicy{
		Rules:          []models.DirectoryRule{{Path: "private", Allowed: false}},
		RootPermission: true,
	}
	ctx := context.Background()
	env.vault.Write(ctx, "open.md", []byte("a"))           //nolint:errcheck
	env.vault.Write(ctx, "private/hidden.md", []byte("b")) //nolint:errcheck

	rec := env.do(http.MethodGet, "/v1/vault/list", c.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Entries []models.NoteInfo `json:"entries"`
	}
	decodeBody(t, rec, &got)
	for _, e := range got.Entries {
		if strings.HasPrefix(e.Path, "private") {
			t.Errorf("blocked subtree leaked into listing: %s", e.Path)
		}
	}

	// Listing the blocked directory itself answers 404.
	if rec := env.do(http.MethodGet, "/v1/vault/list/private", c.Secret, ""); rec.Code != http.StatusNotFound {
		t.Errorf("listing blocked directory = %d, want 404", rec.Code)
	}
}

func TestSearchSkipsBlockedFiles(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	c.Policy = models.DirectoryPolicy{
		Rules:          []models.DirectoryRule{{Path: "private", Allowed: false}},
		RootPermission: true,
	}
	ctx := context.Background()
	env.vault.Write(ctx, "a.md", []byte("needle in note a"))        //nolint:errcheck
	env.vault.Write(ctx, "private/b.md", []byte("needle in note")) //nolint:errcheck

	rec := env.do(http.MethodGet, "/v1/search?q=NEEDLE", c.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Hits []models.SearchHit `json:"hits"`
	}
	decodeBody(t, rec, &got)
	if len(got.Hits) != 1 || got.Hits[0].Path != "a.md" {
		t.Errorf("hits = %+v, want one hit in a.md", got.Hits)
	}
}

func TestTasksExtraction(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	content := "# Plan\n- [ ] write tests\n- [x] wire routes\nnot a task\n"
	if err := env.vault.Write(context.Background(), "plan.md", []byte(content)); err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodGet, "/v1/tasks?status=open", c.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tasks = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Tasks []models.TaskItem `json:"tasks"`
	}
	decodeBody(t, rec, &got)
	if len(got.Tasks) != 1 || got.Tasks[0].Text != "write tests" || got.Tasks[0].Done {
		t.Errorf("open tasks = %+v", got.Tasks)
	}

	if rec := env.do(http.MethodGet, "/v1/tasks?status=bogus", c.Secret, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want 400", rec.Code)
	}
}

func TestCaptureAppendsToInbox(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())

	if rec := env.do(http.MethodPost, "/v1/capture", c.Secret, `{"text":"call the plumber"}`); rec.Code != http.StatusOK {
		t.Fatalf("capture = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(http.MethodPost, "/v1/capture", c.Secret, `{"text":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank capture = %d, want 400", rec.Code)
	}

	data, err := env.vault.Read(context.Background(), "inbox.md")
	if err != nil {
		t.Fatalf("reading inbox: %v", err)
	}
	if !strings.Contains(string(data), "call the plumber") {
		t.Errorf("inbox missing captured text: %q", data)
	}
	if !strings.HasPrefix(string(data), "- ") {
		t.Errorf("captured line should be a timestamped list item: %q", data)
	}
}

func TestDailyNote(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())

	today := time.Now().UTC().Format("2006-01-02") + ".md"
	if err := env.vault.Write(context.Background(), today, []byte("today's plan")); err != nil {
		t.Fatal(err)
	}

	rec := env.do(http.MethodGet, "/v1/periodic/daily", c.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("daily = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Content string `json:"content"`
	}
	decodeBody(t, rec, &got)
	if got.Content != "today's plan" {
		t.Errorf("daily content = %q", got.Content)
	}
}

func TestDailyNoteMissing(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	if rec := env.do(http.MethodGet, "/v1/periodic/daily", c.Secret, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing daily note = %d, want 404", rec.Code)
	}
}

func TestCredentialLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, "admin", models.AllCapabilities())

	// Issue: the secret appears in this response and nowhere else.
	rec := env.do(http.MethodPost, "/v1/sys/credentials", admin.Secret,
		`{"name":"worker","capabilities":{"file_access":true}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue = %d: %s", rec.Code, rec.Body.String())
	}
	var issued struct {
		ID     string `json:"id"`
		Secret string `json:"secret"`
	}
	decodeBody(t, rec, &issued)
	if issued.Secret == "" || !strings.HasPrefix(issued.Secret, "vgt_") {
		t.Fatalf("issue response missing secret: %s", rec.Body.String())
	}

	// The new secret authenticates.
	if rec := env.do(http.MethodGet, "/v1/vault/list", issued.Secret, ""); rec.Code != http.StatusOK {
		t.Errorf("new credential should authenticate, got %d", rec.Code)
	}

	// Listing never exposes secrets.
	rec = env.do(http.MethodGet, "/v1/sys/credentials", admin.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), issued.Secret) || strings.Contains(rec.Body.String(), admin.Secret) {
		t.Error("credential listing leaked a secret")
	}

	// Revoke, then the secret stops working.
	rec = env.do(http.MethodDelete, "/v1/sys/credentials/"+issued.ID, admin.Secret, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(http.MethodGet, "/v1/vault/list", issued.Secret, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked secret should be rejected, got %d", rec.Code)
	}
	if rec := env.do(http.MethodDelete, "/v1/sys/credentials/"+issued.ID, admin.Secret, ""); rec.Code != http.StatusNotFound {
		t.Errorf("double revoke = %d, want 404", rec.Code)
	}
}

func TestCredentialIssueRequiresName(t *testing.T) {
	env := newTestEnv(t)
	admin := env.issue(t, "admin", models.AllCapabilities())
	if rec := env.do(http.MethodPost, "/v1/sys/credentials", admin.Secret, `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("issue without name = %d, want 400", rec.Code)
	}
}

func TestActivityRecording(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	if err := env.vault.Write(context.Background(), "note.md", []byte("x")); err != nil {
		t.Fatal(err)
	}

	env.do(http.MethodGet, "/v1/vault/files/note.md", c.Secret, "")
	env.do(http.MethodGet, "/v1/vault/files/absent.md", c.Secret, "")

	rec := env.do(http.MethodGet, "/v1/activity/agent", c.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("activity get = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Activity models.CredentialActivity `json:"activity"`
	}
	decodeBody(t, rec, &got)
	if got.Activity.CredentialName != "agent" {
		t.Errorf("credential_name = %q", got.Activity.CredentialName)
	}
	if len(got.Activity.Records) != 2 {
		t.Fatalf("expected 2 recorded actions, got %d", len(got.Activity.Records))
	}
	if !got.Activity.Records[0].Success {
		t.Error("successful read should record success=true")
	}
	if got.Activity.Records[1].Success || got.Activity.Records[1].Error == "" {
		t.Error("failed read should record success=false with an error")
	}

	if rec := env.do(http.MethodGet, "/v1/activity/nobody", c.Secret, ""); rec.Code != http.StatusNotFound {
		t.Errorf("activity for unknown credential = %d, want 404", rec.Code)
	}
}

func TestActivityListLimit(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())

	for i := 0; i < 3; i++ {
		env.server.Tracker().Record(fmt.Sprintf("cred-%d", i), models.ActivityRecord{
			Kind:      models.ActivityTool,
			Operation: "op",
			Timestamp: time.Now().UTC(),
			Success:   true,
		})
	}

	rec := env.do(http.MethodGet, "/v1/activity?limit=2", c.Secret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("activity list = %d", rec.Code)
	}
	var got struct {
		Activity []json.RawMessage `json:"activity"`
	}
	decodeBody(t, rec, &got)
	if len(got.Activity) != 2 {
		t.Errorf("limit=2 returned %d aggregates", len(got.Activity))
	}
}

func TestRateLimitAnswers429(t *testing.T) {
	v, err := vault.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := credential.NewStore(nil, nil)
	srv := NewServer(store, v, Config{RateLimitRPS: 1, RateLimitBurst: 2})
	handler := srv.BuildRouter()

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/sys/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request in a burst of two = %d, want 429", last)
	}

	// A different address has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/v1/sys/health", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh address = %d, want 200", rec.Code)
	}
}

func TestWriteIntoBlockedDirectoryIsDenied(t *testing.T) {
	env := newTestEnv(t)
	c := env.issue(t, "agent", models.AllCapabilities())
	c.Policy = models.DirectoryPolicy{
		Rules:          []models.DirectoryRule{{Path: "archive", Allowed: false}},
		RootPermission: true,
	}

	// Creating a new file under a blocked directory is a visible 403, unlike
	// reads, which pretend the subtree does not exist.
	rec := env.do(http.MethodPut, "/v1/vault/files/archive/new.md", c.Secret, `{"content":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("create under blocked dir = %d, want 403", rec.Code)
	}
	if env.vault.Exists(context.Background(), "archive/new.md") {
		t.Error("denied write must not create the file")
	}
}
