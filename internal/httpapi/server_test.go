package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/healthlog/internal/admin"
	"github.com/ent0n29/healthlog/internal/auth"
	"github.com/ent0n29/healthlog/internal/config"
	"github.com/ent0n29/healthlog/internal/observability"
	"github.com/ent0n29/healthlog/internal/records"
	"github.com/ent0n29/healthlog/internal/store"
)

const testSecret = "test-secret"

type testEnv struct {
	ts       *httptest.Server
	store    *store.InMemoryStore
	verifier *auth.JWTVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{Location: time.UTC, AdminToken: "admin-token"}
	st := store.NewInMemoryStore()
	verifier := auth.NewJWTVerifier(testSecret, "")
	metrics := observability.NewMetrics("test_httpapi", prometheus.NewRegistry())
	log := logrus.New()
	log.SetOutput(io.Discard)

	adminSvc := admin.New(admin.Config{Concurrency: 2}, st, metrics, log)
	srv := New(cfg, st, verifier, adminSvc, metrics, log)
	srv.SetClock(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) })

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: st, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := e.verifier.Sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uid,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, http.MethodGet, "/healthz", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["store_mode"] != "in-memory" {
		t.Fatalf("store_mode = %v, want in-memory", payload["store_mode"])
	}
}

func TestAggregateRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, http.MethodGet, "/v1/aggregate", "", nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	res = env.do(t, http.MethodGet, "/v1/aggregate", "not-a-jwt", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAggregateEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	err := env.store.SaveRecords(context.Background(), "user-1", records.Collection{
		Pains: []records.Record{
			{ID: "p-10", CreatedDate: "2024-03-08T10:00", Metadata: map[string]any{"painScore": 3.0}},
			{ID: "p-14", CreatedDate: "2024-03-08T14:00", Metadata: map[string]any{"painScore": 7.0}},
		},
		Bowel: []records.Record{{ID: "b-1", CreatedDate: "2024-03-09T08:00"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Another user's records never leak into the response.
	_ = env.store.SaveRecords(context.Background(), "user-2", records.Collection{
		Moods: []records.Record{{ID: "other", CreatedDate: "2024-03-10T10:00"}},
	})

	res := env.do(t, http.MethodGet, "/v1/aggregate", env.token(t, "user-1"), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var payload struct {
		ChartSeries []struct {
			DayKey      string   `json:"day_key"`
			DayLabel    string   `json:"day_label"`
			PainAverage *float64 `json:"pain_average"`
			BowelCount  *int     `json:"bowel_count"`
		} `json:"chart_series"`
		Summary []struct {
			DisplayDate string `json:"display_date"`
			DayKey      string `json:"day_key"`
			Entries     []struct {
				ID   string `json:"id"`
				Kind string `json:"kind"`
			} `json:"entries"`
		} `json:"summary"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(payload.ChartSeries) != 7 {
		t.Fatalf("len(chart_series) = %d, want 7", len(payload.ChartSeries))
	}
	day8 := payload.ChartSeries[4]
	if day8.DayKey != "2024-03-08" || day8.PainAverage == nil || *day8.PainAverage != 5 || day8.BowelCount != nil {
		t.Fatalf("2024-03-08 point = %+v", day8)
	}
	day9 := payload.ChartSeries[5]
	if day9.PainAverage != nil || day9.BowelCount == nil || *day9.BowelCount != 1 {
		t.Fatalf("2024-03-09 point = %+v", day9)
	}

	if len(payload.Summary) != 2 {
		t.Fatalf("len(summary) = %d, want 2", len(payload.Summary))
	}
	if payload.Summary[0].DayKey != "2024-03-09" || payload.Summary[1].DayKey != "2024-03-08" {
		t.Fatalf("summary order = %+v", payload.Summary)
	}
	if payload.Summary[1].DisplayDate != "Friday 8th March 2024" {
		t.Fatalf("display_date = %q", payload.Summary[1].DisplayDate)
	}
	if got := payload.Summary[1].Entries; got[0].ID != "p-14" || got[1].ID != "p-10" || got[0].Kind != "pain" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestAggregateMalformedRecord(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.SaveRecords(context.Background(), "user-1", records.Collection{
		Foods: []records.Record{{ID: "f", CreatedDate: "last tuesday"}},
	})
	res := env.do(t, http.MethodGet, "/v1/aggregate", env.token(t, "user-1"), nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateRecordThenList(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "user-1")

	res := env.do(t, http.MethodPost, "/v1/records/pains", tok, map[string]any{
		"createdDate": "2024-03-09T21:15",
		"metadata":    map[string]any{"painScore": 6},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var created records.Record
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" || created.Kind != records.KindPain {
		t.Fatalf("created = %+v", created)
	}

	bad := env.do(t, http.MethodPost, "/v1/records/pain", tok, map[string]any{"createdDate": "soon"})
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed create status = %d, want %d", bad.StatusCode, http.StatusBadRequest)
	}
	noScore := env.do(t, http.MethodPost, "/v1/records/pain", tok, map[string]any{"createdDate": "2024-03-09"})
	if noScore.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing painScore status = %d, want %d", noScore.StatusCode, http.StatusBadRequest)
	}
	unknown := env.do(t, http.MethodPost, "/v1/records/sleep", tok, map[string]any{"createdDate": "2024-03-09"})
	if unknown.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown kind status = %d, want %d", unknown.StatusCode, http.StatusBadRequest)
	}

	list := env.do(t, http.MethodGet, "/v1/records", tok, nil)
	if list.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want %d", list.StatusCode, http.StatusOK)
	}
	var payload struct {
		Days []struct {
			DayKey  string           `json:"day_key"`
			Records []records.Record `json:"records"`
		} `json:"days"`
	}
	if err := json.NewDecoder(list.Body).Decode(&payload); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(payload.Days) != 7 || payload.Days[0].DayKey != "2024-03-10" {
		t.Fatalf("days = %+v, want 7 days newest first", payload.Days)
	}
	if len(payload.Days[1].Records) != 1 || payload.Days[1].Records[0].ID != created.ID {
		t.Fatalf("2024-03-09 records = %+v", payload.Days[1].Records)
	}
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.SaveRecords(context.Background(), "user-1", records.Collection{
		Moods: []records.Record{{CreatedDate: "2024-03-09"}},
	})
	_ = env.store.SaveRecords(context.Background(), "user-2", records.Collection{})

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/v1/admin/backfill-ids", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("backfill without token error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	req, _ = http.NewRequest(http.MethodPost, env.ts.URL+"/v1/admin/backfill-ids", nil)
	req.Header.Set("X-Admin-Token", "admin-token")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("backfill error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("backfill status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var report admin.Report
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.AssignedIDs != 1 || report.Updated != 1 || report.Processed != 2 {
		t.Fatalf("report = %+v", report)
	}

	body, _ := json.Marshal(map[string]any{})
	req, _ = http.NewRequest(http.MethodPost, env.ts.URL+"/v1/admin/accounts/delete", bytes.NewReader(body))
	req.Header.Set("X-Admin-Token", "admin-token")
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete error = %v", err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusBadRequest {
		t.Fatalf("delete without ids status = %d, want %d", res2.StatusCode, http.StatusBadRequest)
	}

	body, _ = json.Marshal(map[string]any{"user_ids": []string{"user-2"}})
	req, _ = http.NewRequest(http.MethodPost, env.ts.URL+"/v1/admin/accounts/delete", bytes.NewReader(body))
	req.Header.Set("X-Admin-Token", "admin-token")
	res3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete error = %v", err)
	}
	res3.Body.Close()
	if res3.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", res3.StatusCode, http.StatusOK)
	}
	ids, _ := env.store.ListUserIDs(context.Background())
	if len(ids) != 1 || ids[0] != "user-1" {
		t.Fatalf("remaining users = %v, want [user-1]", ids)
	}
}

func TestPerfLatencyAfterAggregate(t *testing.T) {
	env := newTestEnv(t)
	_ = env.do(t, http.MethodGet, "/v1/aggregate", env.token(t, "user-1"), nil)

	res := env.do(t, http.MethodGet, "/v1/perf/latency", "", nil)
	var snap observability.StageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Stages) != 3 {
		t.Fatalf("stages = %+v, want aggregate, load_records and total", snap.Stages)
	}
}

func TestMetricsServesInjectedRegistry(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", "", nil)

	res := env.do(t, http.MethodGet, "/metrics", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Contains(body, []byte("test_httpapi_http_requests_total")) {
		t.Fatalf("/metrics does not expose the service registry:\n%s", body)
	}
}

func TestDecodeJSONTruncatedBody(t *testing.T) {
	var out map[string]any
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
	if err := decodeJSON(req, &out); err != errEmptyBody {
		t.Fatalf("decodeJSON(empty) error = %v, want errEmptyBody", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"user_ids":["a"`)))
	err := decodeJSON(req, &out)
	if err == nil || err == errEmptyBody {
		t.Fatalf("decodeJSON(truncated) error = %v, want a syntax error", err)
	}
}

func TestDeleteAccountsRejectsTruncatedAndConflictingBodies(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.SaveRecords(context.Background(), "a", records.Collection{})
	_ = env.store.SaveRecords(context.Background(), "b", records.Collection{})

	post := func(body string) (int, errorResponse) {
		req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/v1/admin/accounts/delete", bytes.NewReader([]byte(body)))
		req.Header.Set("X-Admin-Token", "admin-token")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete error = %v", err)
		}
		defer res.Body.Close()
		var payload errorResponse
		_ = json.NewDecoder(res.Body).Decode(&payload)
		return res.StatusCode, payload
	}

	status, _ := post(`{"user_ids":["a"],"all":true}`)
	if status != http.StatusBadRequest {
		t.Fatalf("user_ids with all status = %d, want %d", status, http.StatusBadRequest)
	}

	status, payload := post(`{"user_ids":["a"`)
	if status != http.StatusBadRequest || payload.Error == errEmptyBody.Error() {
		t.Fatalf("truncated body = %d %+v, want a decode error", status, payload)
	}

	ids, _ := env.store.ListUserIDs(context.Background())
	if len(ids) != 2 {
		t.Fatalf("remaining = %v, want [a b]", ids)
	}
}

func TestStoreMode(t *testing.T) {
	if got := StoreMode(store.NewInMemoryStore()); got != "in-memory" {
		t.Fatalf("StoreMode(in-memory) = %q", got)
	}
	if got := StoreMode(nil); got != "disabled" {
		t.Fatalf("StoreMode(nil) = %q", got)
	}
}
