package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fetcher"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/pipeline"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for imports and reconciliation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(env, cfg.Server.AllowedOrigins, int64(cfg.Ingest.MaxUploadMB)<<20)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// api binds HTTP handlers to a pipeline environment.
type api struct {
	env       *pipelineEnv
	maxUpload int64
}

func buildRouter(env *pipelineEnv, origins []string, maxUpload int64) http.Handler {
	a := &api{env: env, maxUpload: maxUpload}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/fingerprint", a.fingerprint)
		r.Post("/import", a.importStatement)
		r.Post("/reconcile", a.reconcile)
		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/transactions/pending", a.pending)
			r.Patch("/transactions/{id}/status", a.updateStatus)
			r.Post("/associations", a.confirm)
		})
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.env.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) fingerprint(w http.ResponseWriter, r *http.Request) {
	doc, err := a.uploadedDocument(w, r, "file")
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	decision, err := a.env.Pipeline.Fingerprint(r.Context(), *doc)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (a *api) importStatement(w http.ResponseWriter, r *http.Request) {
	doc, err := a.uploadedDocument(w, r, "file")
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	user, bank := r.FormValue("user"), r.FormValue("bank")
	if user == "" || bank == "" {
		writeError(w, http.StatusBadRequest, errors.New("user and bank are required"))
		return
	}

	name, data, ok, err := formFile(r, "contributors")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var contributors []model.Contributor
	if ok {
		contributors, err = fetcher.LoadContributors(r.Context(), name, data, r.FormValue("church"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	res, err := a.env.Pipeline.Run(r.Context(), metrics.NewCollector(), pipeline.ImportRequest{
		UserID:       user,
		BankID:       bank,
		Document:     *doc,
		Contributors: contributors,
	})
	if err != nil {
		zap.L().Warn("import failed", zap.String("file", doc.FileName), zap.Error(err))
		if res != nil && keepsPartialResult(err) {
			writeJSON(w, statusFor(err), importErrorOutput{importOutput: newImportOutput(res), Error: err.Error()})
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newImportOutput(res))
}

// importErrorOutput carries the partial import result next to the error: the
// decision preview and suggested mapping for MODEL_REQUIRED, the report and
// phases for a failed persist.
type importErrorOutput struct {
	importOutput
	Error string `json:"error"`
}

func keepsPartialResult(err error) bool {
	var noModel *model.NoModelMatchError
	var failure *model.PersistenceFailureError
	return errors.As(err, &noModel) || errors.As(err, &failure)
}

type reconcileBody struct {
	UserID       string          `json:"user_id"`
	Church       string          `json:"church"`
	Apply        bool            `json:"apply"`
	Contributors json.RawMessage `json:"contributors"`
}

func (a *api) reconcile(w http.ResponseWriter, r *http.Request) {
	var body reconcileBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxUpload)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}
	var contributors []model.Contributor
	if len(body.Contributors) > 0 {
		var err error
		contributors, err = fetcher.LoadContributors(r.Context(), "contributors.json", body.Contributors, body.Church)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	res, err := a.env.Pipeline.Reconcile(r.Context(), metrics.NewCollector(), pipeline.ReconcileRequest{
		UserID:       body.UserID,
		Contributors: contributors,
		Apply:        body.Apply,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileOutput{ReconcileResult: res, Warnings: res.WarningMessages()})
}

func (a *api) pending(w http.ResponseWriter, r *http.Request) {
	page := store.Page{}
	var err error
	if v := r.URL.Query().Get("offset"); v != "" {
		if page.Offset, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid offset"))
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if page.Limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid limit"))
			return
		}
	}

	txs, err := a.env.Store.ListPending(r.Context(), chi.URLParam(r, "user"), page)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (a *api) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.TransactionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
		return
	}

	user, id := chi.URLParam(r, "user"), chi.URLParam(r, "id")
	if err := a.env.Store.UpdateTransactionStatus(r.Context(), user, id, body.Status); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(body.Status)})
}

func (a *api) confirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Result      model.MatchResult `json:"result"`
		Contributor model.Contributor `json:"contributor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
		return
	}

	res, err := a.env.Pipeline.Confirm(r.Context(), chi.URLParam(r, "user"), body.Result, body.Contributor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// uploadedDocument reads the multipart file under field and loads it. The
// whole request body is capped at maxUpload.
func (a *api) uploadedDocument(w http.ResponseWriter, r *http.Request, field string) (*model.RawDocument, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil {
		return nil, eris.Wrap(err, "parse upload")
	}
	name, data, ok, err := formFile(r, field)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Errorf("missing %q file", field)
	}
	return a.env.Loader.Load(r.Context(), name, data)
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func formFile(r *http.Request, field string) (string, []byte, bool, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, eris.Wrapf(err, "read %q", field)
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, false, eris.Wrapf(err, "read %q", field)
	}
	return hdr.Filename, data, true, nil
}

func statusFor(err error) int {
	var noModel *model.NoModelMatchError
	switch {
	case errors.As(err, &noModel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
