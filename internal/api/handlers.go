package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cellqc/domain/core"
	"cellqc/domain/cycling"
	"cellqc/internal/analysis"
	"cellqc/internal/errors"
)

// AnalyzeRequest carries either pre-grouped batches or loose series that
// are grouped by their batch_key.
type AnalyzeRequest struct {
	Batches map[string]cycling.BatchGroup `json:"batches,omitempty"`
	Series  []cycling.ChannelSeries       `json:"series,omitempty"`
}

func (req AnalyzeRequest) groups() (map[string]cycling.BatchGroup, error) {
	if len(req.Batches) == 0 && len(req.Series) == 0 {
		return nil, errors.InvalidInput("request has no batches or series")
	}
	out := cycling.GroupByBatch(req.Series)
	for key, g := range req.Batches {
		if _, dup := out[key]; dup {
			return nil, errors.Newf(errors.CodeInvalidInput, "batch %q given both as a batch and as series", key)
		}
		g.Key = key
		out[key] = g
	}
	return out, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"persistence": s.reports != nil,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"fingerprint":    s.analyzer.Fingerprint(),
		"outlier_method": s.analyzer.OutlierMethod(),
		"settings":       s.analyzer.Settings(),
	})
}

// handleAnalyze runs the analyzer over a JSON body
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req AnalyzeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("invalid request body: %w", err)))
		return
	}
	batches, err := req.groups()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.analyzer.AnalyzeAll(r.Context(), batches)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.finish(w, r, report)
}

// handleAnalyzeUpload runs the analyzer over uploaded exports sent as
// multipart "files" parts
func (s *Server) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "file ingestion is not configured", Code: errors.CodeInternalError})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, r, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("invalid multipart body: %w", err)))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.writeError(w, r, errors.InvalidInput(`no "files" parts in upload`))
		return
	}

	dir, err := os.MkdirTemp("", "cellqc-upload-*")
	if err != nil {
		s.writeError(w, r, errors.Wrap(err, "failed to stage upload"))
		return
	}
	defer os.RemoveAll(dir)

	for _, fh := range files {
		if err := saveUpload(fh, dir); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	series, err := s.reader.ReadSeries(r.Context(), dir)
	if err != nil {
		s.writeError(w, r, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	report, err := s.analyzer.Analyze(r.Context(), series)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.finish(w, r, report)
}

func saveUpload(fh *multipart.FileHeader, dir string) error {
	name := filepath.Base(filepath.Clean("/" + fh.Filename))
	if name == "/" || name == "." {
		return errors.InvalidInput("upload part has no file name")
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open upload %s", name)
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if os.IsExist(err) {
		return errors.InvalidInput(fmt.Sprintf("duplicate upload file name %s", name))
	}
	if err != nil {
		return errors.Wrapf(err, "failed to stage upload %s", name)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrapf(err, "failed to stage upload %s", name)
	}
	return dst.Close()
}

// finish persists the report when storage is configured and writes it out
func (s *Server) finish(w http.ResponseWriter, r *http.Request, report *analysis.RunReport) {
	if s.reports != nil {
		if err := s.reports.SaveReport(r.Context(), report); err != nil {
			s.writeError(w, r, errors.DatabaseError("failed to persist report", err))
			return
		}
		w.Header().Set("Location", "/v1/reports/"+report.RunID.String())
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) requireReports(w http.ResponseWriter) bool {
	if s.reports == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "report storage is not configured", Code: errors.CodeDatabaseError})
		return false
	}
	return true
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, errors.Newf(errors.CodeInvalidInput, "limit must be a non-negative integer, got %q", v))
			return
		}
		limit = n
	}
	summaries, err := s.reports.ListReports(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, errors.DatabaseError("failed to list reports", err))
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (core.RunID, bool) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, errors.WithCode(errors.CodeInvalidInput, err))
		return "", false
	}
	return id, true
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w) {
		return
	}
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	report, err := s.reports.GetReport(r.Context(), id)
	if err != nil {
		s.writeError(w, r, errors.DatabaseError("failed to load report", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w) {
		return
	}
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	batches, err := s.reports.ListBatches(r.Context(), id)
	if err != nil {
		s.writeError(w, r, errors.DatabaseError("failed to list batches", err))
		return
	}
	writeJSON(w, http.StatusOK, batches)
}
