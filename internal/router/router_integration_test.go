//go:build integration

package router_test

// Runs the engine against real Postgres and Redis.
// go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"traceability/internal/config"
	"traceability/internal/dto"
	"traceability/internal/infra"
	"traceability/internal/middleware"
	"traceability/internal/router"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
	rdb    *redis.Client
	org    uuid.UUID
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcPostgres.WithDatabase("traceability_test"),
		tcPostgres.WithUsername("trace"),
		tcPostgres.WithPassword("trace"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                   "test",
		DatabaseURL:           pgURL,
		RedisURL:              rdURL,
		TraversalDefaultDepth: 5,
		TraversalMaxDepth:     10,
		TraversalNodeLimit:    1000,
		RecallMaxDepth:        10,
		ConflictRetryAttempts: 3,
		LotLookupCacheTTL:     time.Hour,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	srv := httptest.NewServer(router.New(cfg, router.Deps{DB: db, Redis: rdb}))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, db: db, rdb: rdb, org: uuid.New()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, dest any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OrganizationHeader, e.org.String())
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dest != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
	}
	return resp.StatusCode
}

// post is safe to call from several goroutines: it reports failures instead
// of stopping the test.
func (e *testEnv) post(path string, body any) (int, map[string]any, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OrganizationHeader, e.org.String())
	resp, err := e.server.Client().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out, nil
}

type postResult struct {
	status int
	body   map[string]any
	err    error
}

// parallel fires n identical POSTs at once and returns every outcome.
func (e *testEnv) parallel(n int, path string, body any) []postResult {
	results := make([]postResult, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			status, out, err := e.post(path, body)
			results[i] = postResult{status: status, body: out, err: err}
		}(i)
	}
	close(start)
	wg.Wait()
	return results
}

func (e *testEnv) createLot(t *testing.T, number string, material uuid.UUID, qty string) dto.LotResponse {
	t.Helper()
	var lot dto.LotResponse
	status := e.do(t, http.MethodPost, "/v1/lots", map[string]any{
		"lot_number":       number,
		"material_id":      material.String(),
		"initial_quantity": qty,
		"unit_of_measure":  "KG",
		"source_type":      "PURCHASED",
		"location":         "WH-1",
	}, &lot)
	require.Equal(t, http.StatusCreated, status)
	return lot
}

func TestEngine_EndToEnd(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	material := uuid.New()

	resin := env.createLot(t, "RESIN-001", material, "100")
	blend := env.createLot(t, "BLEND-001", uuid.New(), "40")

	t.Run("duplicate lot number conflicts", func(t *testing.T) {
		var body map[string]any
		status := env.do(t, http.MethodPost, "/v1/lots", map[string]any{
			"lot_number": "RESIN-001", "material_id": material.String(),
			"initial_quantity": "1", "unit_of_measure": "KG", "source_type": "PURCHASED",
		}, &body)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "DuplicateLotNumber", body["code"])
	})

	status := env.do(t, http.MethodPost, "/v1/links", map[string]any{
		"parent":            map[string]string{"type": "LOT", "id": resin.ID},
		"child":             map[string]string{"type": "LOT", "id": blend.ID},
		"relationship_type": "CONSUMED_IN",
		"quantity_used":     "25",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var unit dto.SerialResponse
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/serials", map[string]any{
		"serial_number": "SN-0001", "material_id": uuid.New().String(), "lot_id": blend.ID,
	}, &unit))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/links", map[string]any{
		"parent":            map[string]string{"type": "LOT", "id": blend.ID},
		"child":             map[string]string{"type": "SERIAL", "id": unit.ID},
		"relationship_type": "ASSEMBLED_INTO",
		"quantity_used":     "10",
	}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/serials/"+unit.ID+"/reserve", nil, nil))
	customer := uuid.New()
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/serials/"+unit.ID+"/ship",
		map[string]any{"customer_id": customer.String()}, nil))

	t.Run("where-used walks to the shipped unit", func(t *testing.T) {
		var trace dto.TraversalResponse
		status := env.do(t, http.MethodPost, "/v1/genealogy/where-used",
			map[string]any{"entity": map[string]string{"type": "LOT", "id": resin.ID}}, &trace)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 3, trace.TotalNodes)
		assert.Equal(t, 2, trace.MaxDepthReached)
		require.Len(t, trace.Root.Children, 1)
		assert.Equal(t, "BLEND-001", trace.Root.Children[0].Identifier)
		require.Len(t, trace.Root.Children[0].Children, 1)
		assert.Equal(t, "SN-0001", trace.Root.Children[0].Children[0].Identifier)
	})

	t.Run("where-from walks back to the raw lot", func(t *testing.T) {
		var trace dto.TraversalResponse
		status := env.do(t, http.MethodPost, "/v1/genealogy/where-from",
			map[string]any{"entity": map[string]string{"type": "SERIAL", "id": unit.ID}}, &trace)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 3, trace.TotalNodes)
	})

	t.Run("recall reaches the customer and caches the lot number", func(t *testing.T) {
		var report dto.RecallReportResponse
		status := env.do(t, http.MethodPost, "/v1/recall-reports", map[string]any{
			"lot_numbers": []string{"RESIN-001", "NOPE-404"},
			"reason":      "supplier contamination",
			"severity":    "HIGH",
		}, &report)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, report.AffectedLots, 1)
		require.Len(t, report.CustomerImpact, 1)
		assert.Equal(t, customer.String(), report.CustomerImpact[0].CustomerID)
		assert.Equal(t, []string{"SN-0001"}, report.CustomerImpact[0].Serials)
		assert.NotEmpty(t, report.Warnings)

		n, err := env.rdb.Exists(ctx, "lotnum:"+env.org.String()+":RESIN-001").Result()
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("history lists the lot's operations in order", func(t *testing.T) {
		var hist dto.HistoryResponse
		status := env.do(t, http.MethodGet, "/v1/genealogy/LOT/"+blend.ID+"/history", nil, &hist)
		require.Equal(t, http.StatusOK, status)
		require.GreaterOrEqual(t, len(hist.Data), 2)
		assert.Equal(t, "created", hist.Data[0].OperationType)
		assert.Equal(t, "linked", hist.Data[1].OperationType)
		assert.False(t, hist.Truncated)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		other := *env
		other.org = uuid.New()
		assert.Equal(t, http.StatusNotFound, other.do(t, http.MethodGet, "/v1/lots/"+resin.ID, nil, nil))
	})

	t.Run("concurrent reservations never over-reserve a lot", func(t *testing.T) {
		hot := env.createLot(t, "HOT-001", material, "100")
		results := env.parallel(20, "/v1/lots/"+hot.ID+"/reserve", map[string]any{"quantity": "7"})

		successes := 0
		for _, r := range results {
			require.NoError(t, r.err)
			if r.status == http.StatusOK {
				successes++
				continue
			}
			assert.Equal(t, http.StatusConflict, r.status, r.body)
			ok := r.body["code"] == "InsufficientQuantity" || r.body["kind"] == "ConcurrencyConflictError"
			assert.True(t, ok, "unexpected failure %v", r.body)
		}
		assert.LessOrEqual(t, successes, 14)

		var lot dto.LotResponse
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/lots/"+hot.ID, nil, &lot))
		assert.True(t, decimal.NewFromInt(int64(7*successes)).Equal(lot.ReservedQuantity), lot.ReservedQuantity.String())
		assert.True(t, lot.ReservedQuantity.LessThanOrEqual(lot.CurrentQuantity))
		assert.Equal(t, successes+1, lot.Version)

		var records int64
		require.NoError(t, env.db.Table("genealogy_records").
			Where("organization_id = ? AND entity_id = ?", env.org, hot.ID).
			Count(&records).Error)
		assert.EqualValues(t, successes+1, records)
	})

	t.Run("concurrent transitions move a serial once", func(t *testing.T) {
		var hot dto.SerialResponse
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/serials", map[string]any{
			"serial_number": "SN-HOT", "material_id": uuid.New().String(),
		}, &hot))
		results := env.parallel(10, "/v1/serials/"+hot.ID+"/reserve", map[string]any{})

		successes := 0
		for _, r := range results {
			require.NoError(t, r.err)
			if r.status == http.StatusOK {
				successes++
				continue
			}
			ok := r.body["code"] == "InvalidTransition" || r.body["kind"] == "ConcurrencyConflictError"
			assert.True(t, ok, "unexpected failure %v", r.body)
		}
		assert.Equal(t, 1, successes)

		var unit dto.SerialResponse
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/serials/"+hot.ID, nil, &unit))
		assert.Equal(t, "RESERVED", unit.Status)
		assert.Equal(t, 2, unit.Version)
	})

	t.Run("ledger tables are append-only", func(t *testing.T) {
		err := env.db.Exec("UPDATE genealogy_records SET entity_identifier = 'x'").Error
		assert.Error(t, err)
		err = env.db.Exec("DELETE FROM traceability_links").Error
		assert.Error(t, err)
	})

	t.Run("schema steps are idempotent", func(t *testing.T) {
		assert.NoError(t, infra.Migrate(env.db))
	})
}
