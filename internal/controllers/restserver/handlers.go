package restserver

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/chrissnell/ecogmark/internal/annotation"
	"github.com/chrissnell/ecogmark/internal/constants"
	"github.com/chrissnell/ecogmark/internal/edf"
	"github.com/chrissnell/ecogmark/internal/pipeline"
	"github.com/chrissnell/ecogmark/internal/report"
	"github.com/chrissnell/ecogmark/internal/storage"
	"github.com/chrissnell/ecogmark/internal/types"
	"github.com/chrissnell/ecogmark/pkg/responseformat"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	uploadField      = "file"
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// UploadResponse points at the artifacts of one analysis. Paths are
// relative to the server root.
type UploadResponse struct {
	ID        uuid.UUID        `json:"id"`
	File      string           `json:"file"`
	JSON      string           `json:"json"`
	Plot      string           `json:"plot"`
	CSV       string           `json:"csv"`
	Report    string           `json:"report"`
	Reused    bool             `json:"reused"`
	Analytics *types.Analytics `json:"analytics"`
}

// HealthResponse reports the version and storage status
type HealthResponse struct {
	Version string                        `json:"version"`
	Storage map[string]storage.HealthData `json:"storage"`
}

// Upload accepts a multipart EDF upload, analyses it and writes the
// artifacts. An upload whose content and mode match a stored analysis with
// artifacts still on disk is answered from storage.
func (h *Handlers) Upload(w http.ResponseWriter, req *http.Request) {
	rc := h.controller.restConfig
	req.Body = http.MaxBytesReader(w, req.Body, int64(rc.MaxUploadMB)<<20)

	mode, err := pipeline.ParseMode(req.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := req.FormFile(uploadField)
	if err != nil {
		h.writeError(w, req, http.StatusBadRequest, "missing multipart field \""+uploadField+"\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, req, http.StatusBadRequest, "failed to read upload")
		return
	}

	base := pipeline.NameHash(header.Filename)
	if err := os.WriteFile(filepath.Join(rc.StaticDir, base+".edf"), data, 0o644); err != nil {
		h.controller.logger.Errorf("failed to save upload %s: %v", header.Filename, err)
		h.writeError(w, req, http.StatusInternalServerError, "failed to save upload")
		return
	}

	if prior := h.prior(req, pipeline.ContentHash(data), mode); prior != nil {
		if arts := pipeline.NewArtifacts(base); arts.Exist(rc.StaticDir) {
			h.controller.logger.Infof("reusing analysis %s for %s", prior.ID, header.Filename)
			h.writeUpload(w, req, prior, arts, true)
			return
		}
	}

	p := h.controller.deps.Pipeline
	out, err := p.Analyze(req.Context(), bytes.NewReader(data), header.Filename, mode)
	if err != nil {
		h.controller.logger.Warnf("analysis of %s failed: %v", header.Filename, err)
		h.writeError(w, req, statusFor(err), err.Error())
		return
	}

	arts, err := p.WriteArtifacts(rc.StaticDir, base, out)
	if err != nil {
		h.controller.logger.Errorf("failed to write artifacts for %s: %v", header.Filename, err)
		h.writeError(w, req, http.StatusInternalServerError, "failed to write results")
		return
	}

	result := out.Result()
	h.publish(req, result)
	h.writeUpload(w, req, &result, arts, false)
}

// prior looks up a stored analysis of the same content and mode. Lookup
// failures are logged and treated as a miss.
func (h *Handlers) prior(req *http.Request, hash string, mode pipeline.Mode) *types.AnalysisResult {
	reader := h.controller.deps.Reader
	if reader == nil {
		return nil
	}
	r, err := reader.FindByHash(req.Context(), hash, string(mode))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.controller.logger.Warnf("failed to look up prior analysis %s: %v", hash, err)
		}
		return nil
	}
	return r
}

func (h *Handlers) writeUpload(w http.ResponseWriter, req *http.Request, r *types.AnalysisResult, arts pipeline.Artifacts, reused bool) {
	h.write(w, req, http.StatusOK, UploadResponse{
		ID:        r.ID,
		File:      path.Join("static", arts.File),
		JSON:      path.Join("static", arts.JSON),
		Plot:      path.Join("static", arts.Plot),
		CSV:       path.Join("static", arts.CSV),
		Report:    path.Join("static", arts.Report),
		Reused:    reused,
		Analytics: r.Analytics,
	})
}

// write sends data and logs any encoding or transport failure
func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("failed to write %s response: %v", req.URL.Path, err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := h.formatter.WriteError(w, req, status, msg); err != nil {
		h.controller.logger.Errorf("failed to write %s error response: %v", req.URL.Path, err)
	}
}

func (h *Handlers) publish(req *http.Request, r types.AnalysisResult) {
	c := h.controller.deps.Results
	if c == nil {
		return
	}
	select {
	case c <- r:
	case <-req.Context().Done():
		h.controller.logger.Warnf("request cancelled before analysis %s was queued for storage", r.ID)
	case <-h.controller.ctx.Done():
	}
}

// statusFor maps analysis errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, annotation.ErrSamplingRateMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, edf.ErrInvalidHeader),
		errors.Is(err, edf.ErrTruncated),
		errors.Is(err, pipeline.ErrUnknownMode),
		errors.Is(err, pipeline.ErrNoClassifier):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// GetAnalysis returns one stored analysis
func (h *Handlers) GetAnalysis(w http.ResponseWriter, req *http.Request) {
	r, ok := h.lookup(w, req)
	if !ok {
		return
	}
	h.write(w, req, http.StatusOK, r)
}

// GetAnalysisReport renders a stored analysis as the plain-text report
func (h *Handlers) GetAnalysisReport(w http.ResponseWriter, req *http.Request) {
	r, ok := h.lookup(w, req)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.Render(w, r.Analytics); err != nil {
		h.controller.logger.Errorf("failed to render report for %s: %v", r.ID, err)
	}
}

func (h *Handlers) lookup(w http.ResponseWriter, req *http.Request) (*types.AnalysisResult, bool) {
	id := mux.Vars(req)["id"]
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, req, http.StatusBadRequest, "invalid analysis id")
		return nil, false
	}

	r, err := h.controller.deps.Reader.GetAnalysis(req.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, req, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		h.controller.logger.Errorf("failed to load analysis %s: %v", id, err)
		h.writeError(w, req, http.StatusInternalServerError, "failed to load analysis")
		return nil, false
	}
	return r, true
}

// ListAnalyses returns the newest stored analyses
func (h *Handlers) ListAnalyses(w http.ResponseWriter, req *http.Request) {
	limit := defaultListLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, req, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	results, err := h.controller.deps.Reader.ListAnalyses(req.Context(), limit)
	if err != nil {
		h.controller.logger.Errorf("failed to list analyses: %v", err)
		h.writeError(w, req, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if results == nil {
		results = []types.AnalysisResult{}
	}
	h.write(w, req, http.StatusOK, results)
}

// GetHealth reports the service version and storage health
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Version: constants.Version, Storage: map[string]storage.HealthData{}}
	if hm := h.controller.deps.Health; hm != nil {
		resp.Storage = hm.GetAllHealth()
	}
	h.write(w, req, http.StatusOK, resp)
}
