package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/config"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fetcher"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fingerprint"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/pipeline"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/store"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/strategy"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testStatement = `Data;Historico;Valor
15/07/2024;PIX RECEBIDO JOAO DA SILVA;100,00
16/07/2024;DIZIMO MARIA SOUZA;50,00
17/07/2024;TARIFA PACOTE;-12,50
`

func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	fp := fingerprint.Compute(testStatement)
	models := strategy.NewFileStore([]model.LearnedFileModel{{
		Identity: model.ModelIdentity{ID: "itau-csv-v1", Name: "itau-csv", Version: 1, LineageID: "itau-csv", IsActive: true},
		Evidence: model.ModelEvidence{Fingerprint: *fp},
		Strategy: model.StrategySpec{
			ParserType:    model.ParserColumns,
			ColumnMapping: model.ColumnMapping{HeaderRows: 1, DateColumn: 0, DescriptionColumn: 1, AmountColumn: model.IntPtr(2)},
		},
		Confidence: model.ModelConfidence{Score: 0.9},
	}})

	c := &config.Config{}
	c.Ingest.ChunkSize = 100
	c.Ingest.PreviewLines = 5
	c.Match.SimilarityThreshold = 80
	c.Match.DayTolerance = 2

	return &pipelineEnv{
		Store:    st,
		Loader:   fetcher.NewLoader(nil),
		Pipeline: pipeline.New(c, st, models, nil),
	}
}

func newTestRouter(t *testing.T) (http.Handler, *pipelineEnv) {
	t.Helper()
	env := newTestEnv(t)
	return buildRouter(env, []string{"*"}, 1<<20), env
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, content := range files {
		name, body, _ := strings.Cut(content, "|")
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func importStatement(t *testing.T, h http.Handler) {
	t.Helper()
	rr := serve(h, multipartRequest(t, "/v1/import",
		map[string]string{"user": "u1", "bank": "itau"},
		map[string]string{"file": "julho.csv|" + testStatement},
	))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	h, env := newTestRouter(t)
	require.NoError(t, env.Store.Close())

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "unavailable")
}

func TestFingerprintEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := serve(h, multipartRequest(t, "/v1/fingerprint", nil,
		map[string]string{"file": "julho.csv|" + testStatement}))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var d strategy.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	assert.Equal(t, strategy.StateModelFound, d.State)
	assert.Equal(t, "julho.csv", d.FileName)
}

func TestFingerprintEndpoint_MissingFile(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := serve(h, multipartRequest(t, "/v1/fingerprint", map[string]string{"user": "u1"}, nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `missing \"file\" file`)
}

func TestImportEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := serve(h, multipartRequest(t, "/v1/import",
		map[string]string{"user": "u1", "bank": "itau", "church": "sede"},
		map[string]string{
			"file":         "julho.csv|" + testStatement,
			"contributors": "membros.csv|Nome;Valor\nJOAO DA SILVA;100,00\n",
		},
	))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		Report struct {
			Inserted int `json:"inserted"`
		} `json:"report"`
		Matches []model.MatchResult `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, 3, out.Report.Inserted)
	assert.NotEmpty(t, out.Matches)
}

func TestImportEndpoint_RequiresUserAndBank(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := serve(h, multipartRequest(t, "/v1/import",
		map[string]string{"user": "u1"},
		map[string]string{"file": "julho.csv|" + testStatement},
	))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "user and bank are required")
}

func TestImportEndpoint_ModelRequired(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := serve(h, multipartRequest(t, "/v1/import",
		map[string]string{"user": "u1", "bank": "itau"},
		map[string]string{"file": "outro.csv|Lancamento,Descricao,Credito,Debito\n2024-07-15,PIX,100.00,\n"},
	))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	var out struct {
		Error    string `json:"error"`
		FileName string `json:"file_name"`
		Decision struct {
			State       strategy.State               `json:"state"`
			Fingerprint *model.StructuralFingerprint `json:"fingerprint"`
			Preview     []string                     `json:"preview"`
		} `json:"decision"`
		Phases []pipeline.Phase `json:"phases"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Contains(t, out.Error, "outro.csv")
	assert.Equal(t, "outro.csv", out.FileName)
	assert.Equal(t, strategy.StateModelRequired, out.Decision.State)
	require.NotNil(t, out.Decision.Fingerprint)
	assert.Equal(t, ",", out.Decision.Fingerprint.Delimiter)
	assert.Equal(t, []string{"Lancamento,Descricao,Credito,Debito", "2024-07-15,PIX,100.00,"}, out.Decision.Preview)
	require.Len(t, out.Phases, 1)
	assert.Equal(t, pipeline.PhaseStatusFailed, out.Phases[0].Status)
}

func TestImportEndpoint_UploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	h := buildRouter(env, []string{"*"}, 512)

	rr := serve(h, multipartRequest(t, "/v1/import",
		map[string]string{"user": "u1", "bank": "itau"},
		map[string]string{"file": "julho.csv|" + strings.Repeat(testStatement, 20)},
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, rr.Body.String())
	pending, err := env.Store.ListPending(context.Background(), "u1", store.Page{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestKeepsPartialResult(t *testing.T) {
	assert.True(t, keepsPartialResult(eris.Wrap(&model.NoModelMatchError{FileName: "x.csv"}, "pipeline")))
	assert.True(t, keepsPartialResult(&model.PersistenceFailureError{ChunkIndex: 1, Inserted: 100, Cause: errors.New("disk full")}))
	assert.False(t, keepsPartialResult(errors.New("boom")))
}

func TestPendingEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	importStatement(t, h)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/v1/users/u1/transactions/pending?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var txs []model.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &txs))
	assert.Len(t, txs, 2)

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/v1/users/nobody/transactions/pending", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestPendingEndpoint_InvalidPage(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/v1/users/u1/transactions/pending?offset=x", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid offset")
}

func TestStatusEndpoint(t *testing.T) {
	h, env := newTestRouter(t)
	importStatement(t, h)

	txs, err := env.Store.ListPending(context.Background(), "u1", store.Page{})
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	path := fmt.Sprintf("/v1/users/u1/transactions/%s/status", txs[0].ID)

	patch := func(status string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"status":"`+status+`"}`))
		req.Header.Set("Content-Type", "application/json")
		return serve(h, req)
	}

	assert.Equal(t, http.StatusOK, patch("identified").Code)
	assert.Equal(t, http.StatusConflict, patch("pending").Code)

	req := httptest.NewRequest(http.MethodPatch, "/v1/users/u1/transactions/missing/status", strings.NewReader(`{"status":"resolved"}`))
	assert.Equal(t, http.StatusNotFound, serve(h, req).Code)
}

func TestReconcileEndpoint(t *testing.T) {
	h, env := newTestRouter(t)
	importStatement(t, h)

	body := `{"user_id":"u1","church":"sede","apply":true,"contributors":[{"name":"JOAO DA SILVA","amount":"100,00"},{"name":"PEDRO ALVES","amount":30}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/reconcile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := serve(h, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		Results []model.MatchResult `json:"results"`
		Updated int                 `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.GreaterOrEqual(t, len(out.Results), 3)

	pending, err := env.Store.ListPending(context.Background(), "u1", store.Page{})
	require.NoError(t, err)
	assert.Len(t, pending, 3-out.Updated)
}

func TestReconcileEndpoint_BadRequests(t *testing.T) {
	h, _ := newTestRouter(t)

	for name, body := range map[string]string{
		"invalid json": `not json`,
		"missing user": `{"contributors":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(http.MethodPost, "/v1/reconcile", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestConfirmEndpoint(t *testing.T) {
	h, env := newTestRouter(t)
	importStatement(t, h)

	txs, err := env.Store.ListPending(context.Background(), "u1", store.Page{})
	require.NoError(t, err)
	var tarifa model.Transaction
	for _, tx := range txs {
		if strings.Contains(tx.RawDescription, "TARIFA") {
			tarifa = tx
		}
	}
	require.NotEmpty(t, tarifa.ID)

	payload, err := json.Marshal(map[string]any{
		"result":      model.MatchResult{Transaction: tarifa, Status: model.MatchUnidentified},
		"contributor": model.Contributor{Name: "BANCO", NormalizedName: "banco", ChurchID: "sede"},
	})
	require.NoError(t, err)

	rr := serve(h, httptest.NewRequest(http.MethodPost, "/v1/users/u1/associations", bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assocs, err := env.Store.ListAssociations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, assocs, 1)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/reconcile", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := serve(h, req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(eris.Wrap(&model.NoModelMatchError{FileName: "x.csv"}, "pipeline")))
	assert.Equal(t, http.StatusNotFound, statusFor(eris.Wrap(store.ErrNotFound, "update")))
	assert.Equal(t, http.StatusConflict, statusFor(store.ErrInvalidTransition))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
	assert.Equal(t, 0, resolvePort(0, 0))
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, _ := newTestRouter(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close() //nolint:errcheck

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, h, port)
	}()

	var ready bool
	for range 50 {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			resp.Body.Close() //nolint:errcheck
			ready = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
