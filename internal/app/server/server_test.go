package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"greenweb/internal/api/dto"
	"greenweb/internal/auth"
	"greenweb/internal/database"
	"greenweb/internal/domain"
	"greenweb/internal/greencheck"
)

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupAddrs(_ context.Context, host string) ([]netip.Addr, error) {
	return r[host], nil
}

type testEnv struct {
	db      *gorm.DB
	handler http.Handler
	host    domain.Provider
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if _, err := database.SetupDB(database.WithExistingDB(db), database.WithMigrations(database.DefaultMigrations()...)); err != nil {
		t.Fatalf("setup database: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
		database.DB = nil
	})

	host := domain.Provider{Name: "Leaf Hosting", Website: "https://leaf.example", Country: "NL", ShowOnWebsite: true, Partner: "Gold"}
	if err := db.Create(&host).Error; err != nil {
		t.Fatalf("create provider: %v", err)
	}
	green := domain.NewIPRangeFromPrefix(host.ID, netip.MustParsePrefix("192.0.2.0/24"))
	if err := db.Create(&green).Error; err != nil {
		t.Fatalf("create range: %v", err)
	}

	resolver := staticResolver{
		"leaf.example": {netip.MustParseAddr("192.0.2.10")},
		"grey.example": {netip.MustParseAddr("203.0.113.5")},
	}
	checker := greencheck.New(database.GreencheckStore{}, resolver, nil, greencheck.WithBatchConcurrency(1))

	return &testEnv{db: db, handler: New(checker).Routes(), host: host}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func adminToken(t *testing.T) string {
	t.Helper()
	t.Setenv("ADMIN_JWT_SECRET", "server-test-secret")
	token, err := auth.GenerateJWT(1, auth.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return token
}

func TestGreencheckSingle(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodGet, "/api/v3/greencheck/leaf.example", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[dto.GreencheckResult](t, rec)
	if !got.Green || got.HostedByID != env.host.ID || got.HostedBy != "Leaf Hosting" || got.MatchType != domain.MatchTypeIP {
		t.Fatalf("result = %+v", got)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("missing request id header")
	}

	grey := decode[dto.GreencheckResult](t, env.do(t, http.MethodGet, "/api/v3/greencheck/grey.example", nil, ""))
	if grey.Green || grey.MatchType != domain.MatchTypeNone {
		t.Fatalf("grey result = %+v", grey)
	}

	if rec := env.do(t, http.MethodGet, "/api/v3/greencheck/not%20a%20domain", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid domain status = %d", rec.Code)
	}
}

func TestGreencheckSingleWithCollapsedScheme(t *testing.T) {
	env := setupServer(t)

	// The router cleans "https://leaf.example" in the path to this form.
	rec := env.do(t, http.MethodGet, "/api/v3/greencheck/https:/leaf.example", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[dto.GreencheckResult](t, rec)
	if got.URL != "leaf.example" || !got.Green {
		t.Fatalf("result = %+v", got)
	}
}

func TestGreencheckMulti(t *testing.T) {
	env := setupServer(t)

	body, _ := json.Marshal([]string{"leaf.example", "grey.example", "https://leaf.example/about"})
	rec := env.do(t, http.MethodPost, "/api/v3/greencheckmulti", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[map[string]dto.GreencheckResult](t, rec)
	if len(got) != 3 {
		t.Fatalf("got %d results", len(got))
	}
	if !got["leaf.example"].Green || got["grey.example"].Green || !got["https://leaf.example/about"].Green {
		t.Fatalf("results = %+v", got)
	}

	if rec := env.do(t, http.MethodPost, "/api/v3/greencheckmulti", []byte(`{"not":"a list"}`), ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}
}

func TestLegacyGreencheckMulti(t *testing.T) {
	env := setupServer(t)

	list := url.PathEscape(`["leaf.example","grey.example"]`)
	got := decode[map[string]dto.GreencheckResult](t, env.do(t, http.MethodGet, "/greencheckmulti/"+list, nil, ""))
	if !got["leaf.example"].Green || got["grey.example"].Green {
		t.Fatalf("results = %+v", got)
	}

	rec := env.do(t, http.MethodGet, "/greencheckmulti/"+url.PathEscape("not-json"), nil, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("unusable input: status %d body %q", rec.Code, rec.Body)
	}
}

func TestLatestGreenchecks(t *testing.T) {
	env := setupServer(t)

	env.do(t, http.MethodGet, "/api/v3/greencheck/leaf.example", nil, "")
	env.do(t, http.MethodGet, "/api/v3/greencheck/grey.example", nil, "")

	rec := env.do(t, http.MethodGet, "/api/v3/latest", nil, "")
	checks := decode[[]map[string]any](t, rec)
	if len(checks) != 2 {
		t.Fatalf("got %d checks", len(checks))
	}
	for _, check := range checks {
		switch check["url"] {
		case "leaf.example":
			if check["green"] != true || check["hostingProviderName"] != "Leaf Hosting" {
				t.Fatalf("green check = %v", check)
			}
		case "grey.example":
			if check["green"] != false || check["hostingProviderId"] != false || check["hostingProviderUrl"] != false {
				t.Fatalf("grey check = %v", check)
			}
		default:
			t.Fatalf("unexpected check %v", check)
		}
	}
}

func TestDirectory(t *testing.T) {
	env := setupServer(t)
	regular := domain.Provider{Name: "Aardvark Hosting", Website: "https://aardvark.example", Country: "NL", ShowOnWebsite: true}
	hidden := domain.Provider{Name: "Hidden", Country: "NL"}
	if err := env.db.Create(&regular).Error; err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if err := env.db.Create(&hidden).Error; err != nil {
		t.Fatalf("create provider: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/data/directory/", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	directory := decode[map[string]dto.DirectoryCountry](t, rec)

	nl, ok := directory["NL"]
	if !ok {
		t.Fatal("NL missing from directory")
	}
	if nl.TLD != ".nl" || nl.CountryName != "NETHERLANDS" {
		t.Fatalf("NL entry = %+v", nl)
	}
	if len(nl.Providers) != 2 || nl.Providers[0].Naam != "Leaf Hosting" || nl.Providers[1].Naam != "Aardvark Hosting" {
		t.Fatalf("NL providers = %+v", nl.Providers)
	}
	if de := directory["DE"]; de.ISO != "DE" || len(de.Providers) != 0 {
		t.Fatalf("DE entry = %+v", de)
	}
}

func TestProviderDetail(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/data/hostingprovider/%d", env.host.ID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	detail := decode[[]map[string]any](t, rec)
	if len(detail) != 1 || detail[0]["naam"] != "Leaf Hosting" || detail[0]["countrydomain"] != "NL" || detail[0]["certurl"] != nil {
		t.Fatalf("detail = %v", detail)
	}

	if rec := env.do(t, http.MethodGet, "/data/hostingprovider/999999", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing provider status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/data/hostingprovider/abc", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := setupServer(t)
	t.Setenv("ADMIN_JWT_SECRET", "server-test-secret")

	for _, target := range []string{"/admin/importers/google", "/admin/export", "/admin/provider-requests"} {
		if rec := env.do(t, http.MethodPost, target, nil, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: status %d", target, rec.Code)
		}
	}
}

func TestProviderRequestLifecycle(t *testing.T) {
	env := setupServer(t)
	token := adminToken(t)

	submission := []byte(`{
		"name": "Sunny Servers",
		"website": "https://sunny.example",
		"services": ["Shared Hosting"],
		"locations": [{"name": "HQ", "city": "Utrecht", "country": "nl"}],
		"asns": [64501],
		"ip_ranges": [{"start": "198.51.100.0", "end": "198.51.100.255"}],
		"evidence": [{"title": "Contract", "link": "https://sunny.example/contract.pdf", "type": "Certificate", "public": true}]
	}`)
	rec := env.do(t, http.MethodPost, "/admin/provider-requests", submission, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[dto.ProviderRequestInfo](t, rec)
	if created.Status != string(domain.StatusOpen) {
		t.Fatalf("created = %+v", created)
	}

	status := []byte(`{"status": "Pending review"}`)
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/admin/provider-requests/%d/status", created.ID), status, token)
	if rec.Code != http.StatusOK || decode[dto.ProviderRequestInfo](t, rec).Status != string(domain.StatusPendingReview) {
		t.Fatalf("status change: %d %s", rec.Code, rec.Body)
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/admin/provider-requests/%d/approve", created.ID), nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body %s", rec.Code, rec.Body)
	}
	approved := decode[dto.ApprovedProvider](t, rec)
	if approved.Country != "NL" || approved.City != "Utrecht" {
		t.Fatalf("approved = %+v", approved)
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/admin/provider-requests/%d/approve", created.ID), nil, token)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second approve status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/admin/provider-requests/424242/approve", nil, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown request status = %d", rec.Code)
	}
}

func TestProviderRequestValidation(t *testing.T) {
	env := setupServer(t)
	token := adminToken(t)

	invalid := []byte(`{
		"name": "Broken",
		"website": "https://broken.example",
		"locations": [{"city": "Berlin", "country": "DE"}],
		"evidence": [{"title": "Both", "link": "https://x.example", "file": "x.pdf", "type": "Other"}]
	}`)
	rec := env.do(t, http.MethodPost, "/admin/provider-requests", invalid, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestCSVImportPreviewAndRun(t *testing.T) {
	env := setupServer(t)
	token := adminToken(t)

	csv := []byte("IP\n192.0.2.10\n203.0.113.9\n")
	target := fmt.Sprintf("/admin/importers/csv/%d", env.host.ID)

	rec := env.do(t, http.MethodPost, target+"?preview=true", csv, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body)
	}
	preview := decode[dto.CSVPreview](t, rec)
	if len(preview.Create) != 2 || len(preview.Update) != 0 {
		t.Fatalf("preview = %+v", preview)
	}

	rec = env.do(t, http.MethodPost, target, csv, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body)
	}
	result := decode[dto.ImportResult](t, rec)
	if result.IPv4.Created != 2 {
		t.Fatalf("result = %+v", result)
	}

	rec = env.do(t, http.MethodPost, "/admin/importers/csv/999999", csv, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing provider status = %d", rec.Code)
	}
}

func TestUnknownImporter(t *testing.T) {
	env := setupServer(t)
	token := adminToken(t)

	if rec := env.do(t, http.MethodPost, "/admin/importers/nope", nil, token); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := setupServer(t)

	limited := false
	for i := 0; i < 200; i++ {
		if rec := env.do(t, http.MethodGet, "/api/v3/latest", nil, ""); rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected the public API to be rate limited")
	}

	if rec := env.do(t, http.MethodGet, "/version", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("version should not be rate limited, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupServer(t)
	rec := env.do(t, http.MethodOptions, "/api/v3/greencheckmulti", nil, "")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}
}

func TestAdminStatusWithoutRedis(t *testing.T) {
	env := setupServer(t)
	t.Setenv("redisUrl", "invalid://nowhere")
	token := adminToken(t)

	rec := env.do(t, http.MethodGet, "/admin/status", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[statusResponse](t, rec)
	if !got.Database || got.Instances != 0 {
		t.Fatalf("status = %+v", got)
	}
}
