package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"siteforms/internal/config"
	"siteforms/internal/db"
	"siteforms/internal/domain"
	"siteforms/internal/engine"
	"siteforms/internal/forms"
	"siteforms/internal/migrate"
	"siteforms/internal/page"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Pages  *page.Registry
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("site-1")
	for _, fn := range mutate {
		fn(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, cfg)
	e.Logger = logger
	pages, err := page.NewRegistry(page.Options{Config: cfg, Transport: e, Logger: logger})
	if err != nil {
		t.Fatalf("page registry: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		Pages:    pages,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret},
		Logger:   logger,
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
		Pages:  pages,
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

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return out
}

func bearer(t *testing.T) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, "ops", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func fieldValue(st forms.State, name string) (forms.FieldState, bool) {
	for _, f := range st.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return forms.FieldState{}, false
}

func TestPageQuoteLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/pages?locale=en", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create page status %d: %s", res.StatusCode, string(data))
	}
	pg := decode[PageResponse](t, data)
	if pg.Language != "en" {
		t.Fatalf("expected en page, got %s", pg.Language)
	}
	if len(pg.Forms) != 3 {
		t.Fatalf("expected 3 forms, got %d", len(pg.Forms))
	}
	pageURL := base + "/pages/" + pg.ID

	res, data = doJSON(t, client, http.MethodPost, pageURL+"/modals/quote/open", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("open modal status %d: %s", res.StatusCode, string(data))
	}
	if mods := decode[ModalsResponse](t, data); !mods.ScrollLocked {
		t.Fatalf("expected scroll lock while quote is open")
	}

	// Missing everything: all required fields decorated, nothing stored.
	res, data = doJSON(t, client, http.MethodPost, pageURL+"/forms/quote/submit", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	apiErr := decode[struct {
		Error apiErrorBody `json:"error"`
	}](t, data)
	if apiErr.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %s", apiErr.Error.Code)
	}
	fields, _ := apiErr.Error.Details["fields"].(map[string]any)
	for _, name := range []string{"name", "email", "phone", "service"} {
		if fields[name] != "field required." {
			t.Fatalf("expected %s to be required, got %v", name, fields[name])
		}
	}

	values := map[string]string{
		"name":    "Ayşe Yılmaz",
		"email":   "ayse@example.com",
		"phone":   "05321234567",
		"service": "erp",
	}
	for field, value := range values {
		res, data = doJSON(t, client, http.MethodPut, pageURL+"/forms/quote/fields/"+field, map[string]any{"value": value}, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("set %s status %d: %s", field, res.StatusCode, string(data))
		}
	}
	res, data = doJSON(t, client, http.MethodPost, pageURL+"/forms/quote/fields/email/blur", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("blur status %d: %s", res.StatusCode, string(data))
	}
	if blur := decode[BlurResponse](t, data); !blur.Result.Valid {
		t.Fatalf("expected valid email, got %+v", blur.Result)
	}

	// Consent box is still unchecked.
	res, data = doJSON(t, client, http.MethodPost, pageURL+"/forms/quote/submit", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected consent gate 422, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, pageURL+"/forms/quote/consent", map[string]any{"checked": true}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("consent status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, pageURL+"/forms/quote/submit", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	out := decode[SubmitResponse](t, data)
	if !out.Outcome.Success || out.Outcome.ReceiptID == "" {
		t.Fatalf("expected success with receipt, got %+v", out.Outcome)
	}
	if out.Outcome.CloseModal != "quote" {
		t.Fatalf("expected quote modal to close, got %q", out.Outcome.CloseModal)
	}
	if out.Form == nil {
		t.Fatalf("expected form state")
	}
	if f, _ := fieldValue(*out.Form, "name"); f.Value != "" {
		t.Fatalf("expected form reset, name=%q", f.Value)
	}
	if !out.Form.Message.Visible || out.Form.Message.Kind != forms.MessageSuccess {
		t.Fatalf("expected success message, got %+v", out.Form.Message)
	}

	sub, err := srv.Engine.Repo.GetSubmission(context.Background(), out.Outcome.ReceiptID)
	if err != nil {
		t.Fatalf("stored submission: %v", err)
	}
	if sub.PageID != pg.ID || sub.Values["email"] != "ayse@example.com" {
		t.Fatalf("unexpected submission %+v", sub)
	}

	res, _ = doJSON(t, client, http.MethodDelete, pageURL, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete page status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, pageURL, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected deleted page 404, got %d", res.StatusCode)
	}
}

func TestPageUsesTurkishMessages(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	_, data := doJSON(t, client, http.MethodPost, base+"/pages", nil, map[string]string{"Accept-Language": "tr-TR,tr;q=0.9"})
	pg := decode[PageResponse](t, data)
	pageURL := base + "/pages/" + pg.ID

	doJSON(t, client, http.MethodPut, pageURL+"/forms/demo/fields/phone", map[string]any{"value": "12345"}, nil)
	res, data := doJSON(t, client, http.MethodPost, pageURL+"/forms/demo/fields/phone/blur", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("blur status %d: %s", res.StatusCode, string(data))
	}
	blur := decode[BlurResponse](t, data)
	if blur.Result.Valid || blur.Result.Reason != "Geçerli bir telefon numarası girin (örn: 05XXXXXXXXX)." {
		t.Fatalf("unexpected blur result %+v", blur.Result)
	}
}

func TestPageErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, _ := doJSON(t, client, http.MethodGet, base+"/pages/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown page, got %d", res.StatusCode)
	}
	_, data := doJSON(t, client, http.MethodPost, base+"/pages", nil, nil)
	pg := decode[PageResponse](t, data)
	pageURL := base + "/pages/" + pg.ID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown form", http.MethodGet, "/forms/careers", nil, http.StatusNotFound},
		{"unknown field", http.MethodPut, "/forms/quote/fields/fax", map[string]any{"value": "x"}, http.StatusBadRequest},
		{"unknown modal", http.MethodPost, "/modals/careers/open", nil, http.StatusNotFound},
		{"close unknown modal", http.MethodPost, "/modals/careers/close", nil, http.StatusNotFound},
		{"unknown service", http.MethodPost, "/services/cloud/open", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, client, tc.method, pageURL+tc.path, tc.body, nil)
			if res.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, res.StatusCode, string(data))
			}
		})
	}
}

func TestPageOpenService(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	_, data := doJSON(t, client, http.MethodPost, base+"/pages", nil, nil)
	pg := decode[PageResponse](t, data)
	pageURL := base + "/pages/" + pg.ID

	res, data := doJSON(t, client, http.MethodPost, pageURL+"/services/erp/open", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("open service status %d: %s", res.StatusCode, string(data))
	}
	mods := decode[ModalsResponse](t, data)
	var found bool
	for _, m := range mods.Modals {
		if m.Name == page.ServiceModal {
			found = m.Open && m.Content.Title == "ERP Çözümleri"
		}
	}
	if !found {
		t.Fatalf("expected service modal with ERP content, got %+v", mods.Modals)
	}

	res, data = doJSON(t, client, http.MethodPost, pageURL+"/modals/close-all", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close-all status %d: %s", res.StatusCode, string(data))
	}
	if mods := decode[ModalsResponse](t, data); mods.ScrollLocked {
		t.Fatalf("expected scroll unlocked after close-all")
	}
}

func TestOneShotSubmission(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/forms/contact/validate", map[string]any{
		"values": map[string]string{"email": "not-an-email"},
	}, map[string]string{"Accept-Language": "en"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	val := decode[ValidationResponse](t, data)
	if val.Valid {
		t.Fatalf("expected invalid form")
	}
	if val.Fields["email"].Reason != "enter a valid email address." {
		t.Fatalf("unexpected email result %+v", val.Fields["email"])
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/forms/contact/submissions", map[string]any{
		"values": map[string]string{"name": "Mehmet"},
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}

	accepted := true
	res, data = doJSON(t, client, http.MethodPost, base+"/forms/contact/submissions", map[string]any{
		"values": map[string]string{
			"name":    "Mehmet",
			"email":   "mehmet@example.com",
			"message": "<i>Merhaba</i>",
		},
		"consent": accepted,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	out := decode[SubmitResponse](t, data)
	if !out.Outcome.Success {
		t.Fatalf("expected success, got %+v", out.Outcome)
	}
	if out.Outcome.CloseModal != "" {
		t.Fatalf("inline contact form must not close a modal, got %q", out.Outcome.CloseModal)
	}
	sub, err := srv.Engine.Repo.GetSubmission(context.Background(), out.Outcome.ReceiptID)
	if err != nil {
		t.Fatalf("stored submission: %v", err)
	}
	if sub.Values["message"] != "Merhaba" {
		t.Fatalf("expected sanitized message, got %q", sub.Values["message"])
	}

	res, _ = doJSON(t, client, http.MethodPost, base+"/forms/careers/submissions", map[string]any{}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown form, got %d", res.StatusCode)
	}
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodGet, base+"/submissions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, base+"/submissions", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, base+"/services", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("visitor route should stay open, got %d", res.StatusCode)
	}

	for _, name := range []string{"Ali", "Veli", "Ayşe"} {
		_, err := srv.Engine.Submit(context.Background(), "demo", map[string]string{"name": name, "phone": "05321234567"})
		if err != nil {
			t.Fatalf("seed submission: %v", err)
		}
	}

	auth := bearer(t)
	res, data = doJSON(t, client, http.MethodGet, base+"/submissions?form=demo&limit=2", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	page1 := decode[paginatedSubmissions](t, data)
	if len(page1.Items) != 2 || page1.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d %q", len(page1.Items), page1.NextCursor)
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/submissions?form=demo&limit=2&cursor="+page1.NextCursor, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list page 2 status %d: %s", res.StatusCode, string(data))
	}
	page2 := decode[paginatedSubmissions](t, data)
	if len(page2.Items) != 1 || page2.NextCursor != "" {
		t.Fatalf("expected last item without cursor, got %d %q", len(page2.Items), page2.NextCursor)
	}
	seen := map[string]bool{}
	for _, s := range append(page1.Items, page2.Items...) {
		seen[s.Values["name"]] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected every submission once, got %v", seen)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/submissions/"+page2.Items[0].ID, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get submission status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, base+"/submissions/missing", nil, auth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestSessionsListLivePages(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, _ := doJSON(t, client, http.MethodGet, base+"/sessions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}
	var created []string
	for i := 0; i < 2; i++ {
		_, data := doJSON(t, client, http.MethodPost, base+"/pages", nil, nil)
		created = append(created, decode[PageResponse](t, data).ID)
	}
	doJSON(t, client, http.MethodDelete, base+"/pages/"+created[0], nil, nil)

	res, data := doJSON(t, client, http.MethodGet, base+"/sessions", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sessions status %d: %s", res.StatusCode, string(data))
	}
	got := decode[SessionsResponse](t, data)
	if got.Count != 1 || len(got.IDs) != 1 || got.IDs[0] != created[1] {
		t.Fatalf("unexpected sessions %+v, want only %s", got, created[1])
	}
}

func TestConsentAndTelemetry(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodGet, base+"/consent/visitor-1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get consent status %d: %s", res.StatusCode, string(data))
	}
	if c := decode[ConsentResponse](t, data); c.HasConsent {
		t.Fatalf("expected no decision yet")
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/consent", map[string]any{"visitor_id": "visitor-1", "decision": "accepted"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("record consent status %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodGet, base+"/consent/visitor-1", nil, nil)
	if c := decode[ConsentResponse](t, data); !c.HasConsent || c.Decision != domain.ConsentAccepted {
		t.Fatalf("expected accepted consent, got %+v", c)
	}
	res, _ = doJSON(t, client, http.MethodPost, base+"/consent", map[string]any{"decision": "maybe"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad decision, got %d", res.StatusCode)
	}

	for _, v := range []float64{1200, 1800} {
		res, data = doJSON(t, client, http.MethodPost, base+"/telemetry", map[string]any{"name": "page_load", "value": v}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("record metric status %d: %s", res.StatusCode, string(data))
		}
	}
	res, _ = doJSON(t, client, http.MethodGet, base+"/telemetry/summary", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("summary should need a token, got %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/telemetry/summary", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, string(data))
	}
	summary := decode[[]domain.MetricSummary](t, data)
	if len(summary) != 1 || summary[0].Count != 2 || summary[0].Avg != 1500 || summary[0].Max != 1800 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?type=metric.recorded&limit=1", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	evs := decode[paginatedEvents](t, data)
	if len(evs.Items) != 1 || evs.NextCursor == "" {
		t.Fatalf("expected one event and a cursor, got %+v", evs)
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/events?type=metric.recorded&limit=1&cursor="+evs.NextCursor, nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	next := decode[paginatedEvents](t, data)
	if len(next.Items) != 1 || next.Items[0].ID >= evs.Items[0].ID {
		t.Fatalf("expected the older event, got %+v", next.Items)
	}
}

func TestServicesCatalog(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	_, data := doJSON(t, client, http.MethodGet, base+"/services", nil, nil)
	items := decode[[]ServiceResponse](t, data)
	if len(items) != 5 || items[0].Slug != "erp" {
		t.Fatalf("expected sorted services, got %+v", items)
	}
	res, data := doJSON(t, client, http.MethodGet, base+"/services/seo", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get service status %d: %s", res.StatusCode, string(data))
	}
	if svc := decode[ServiceResponse](t, data); svc.CTA != "quote" || len(svc.Sections) == 0 {
		t.Fatalf("unexpected service %+v", svc)
	}
}

func TestOpenAPIMarksOperatorRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc struct {
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	if len(doc.Paths["/v1/submissions"]["get"].Security) == 0 {
		t.Fatalf("expected bearer security on submissions")
	}
	if len(doc.Paths["/v1/forms"]["get"].Security) != 0 {
		t.Fatalf("forms should be public")
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const n = 8
	var wg sync.WaitGroup
	sizes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v1/openapi.json")
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != http.StatusOK {
				t.Errorf("openapi status %d", res.StatusCode)
			}
			sizes[i] = len(data)
		}(i)
	}
	wg.Wait()
	for i, size := range sizes {
		if size == 0 || size != sizes[0] {
			t.Fatalf("response %d has %d bytes, want %d", i, size, sizes[0])
		}
	}
}

func TestPageValidateDropsStaleConsentMessage(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	_, data := doJSON(t, client, http.MethodPost, base+"/pages?locale=en", nil, nil)
	pageURL := base + "/pages/" + decode[PageResponse](t, data).ID
	doJSON(t, client, http.MethodPut, pageURL+"/forms/demo/fields/name", map[string]any{"value": "Ali"}, nil)
	doJSON(t, client, http.MethodPut, pageURL+"/forms/demo/fields/phone", map[string]any{"value": "05321234567"}, nil)

	_, data = doJSON(t, client, http.MethodPost, pageURL+"/forms/demo/validate", nil, nil)
	first := decode[ValidationResponse](t, data)
	if first.Valid || first.Message == "" {
		t.Fatalf("expected consent gate to fail with a message, got %+v", first)
	}

	res, data := doJSON(t, client, http.MethodPut, pageURL+"/forms/demo/consent", map[string]any{"checked": true}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("consent status %d: %s", res.StatusCode, string(data))
	}
	_, data = doJSON(t, client, http.MethodPost, pageURL+"/forms/demo/validate", nil, nil)
	second := decode[ValidationResponse](t, data)
	if !second.Valid {
		t.Fatalf("expected valid form after consent, got %+v", second)
	}
	if second.Message != "" {
		t.Fatalf("valid form reported message %q", second.Message)
	}
}

func TestWebhookDelivery(t *testing.T) {
	got := make(chan *http.Request, 4)
	bodies := make(chan []byte, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- r
		bodies <- b
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks = []config.Webhook{{
			URL:    hook.URL,
			Secret: "s3cret",
			Events: []string{"submission.created"},
		}}
	})
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if !StartWebhookDispatcher(ctx, srv.Engine, 10*time.Millisecond, logger) {
		t.Fatalf("expected dispatcher to start")
	}

	if _, err := srv.Engine.RecordConsent(context.Background(), "v1", domain.ConsentRejected); err != nil {
		t.Fatalf("consent: %v", err)
	}
	receipt, err := srv.Engine.Submit(context.Background(), "demo", map[string]string{"name": "Ali", "phone": "05321234567"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case r := <-got:
		body := <-bodies
		if r.Header.Get("X-Siteforms-Event") != "submission.created" {
			t.Fatalf("unexpected event header %q", r.Header.Get("X-Siteforms-Event"))
		}
		if r.Header.Get("X-Siteforms-Secret") != "s3cret" || r.Header.Get("X-Siteforms-Site") != "site-1" {
			t.Fatalf("unexpected headers %v", r.Header)
		}
		var evt webhookEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			t.Fatalf("decode webhook: %v", err)
		}
		if evt.EntityID != receipt.ID {
			t.Fatalf("expected submission %s, got %s", receipt.ID, evt.EntityID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("webhook not delivered")
	}

	select {
	case r := <-got:
		t.Fatalf("unexpected extra delivery %s", r.Header.Get("X-Siteforms-Event"))
	case <-time.After(100 * time.Millisecond):
	}
}
