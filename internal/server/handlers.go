package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/rshade/eap-emissions-calculator/internal/appinfo"
	"github.com/rshade/eap-emissions-calculator/internal/emissions"
	"github.com/rshade/eap-emissions-calculator/internal/export"
)

// Error codes returned in error bodies.
const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeInvalidQuantity = "INVALID_QUANTITY"
	codeUnknownSource   = "UNKNOWN_SOURCE"
	codeNotFound        = "NOT_FOUND"
	codeNoData          = "NO_DATA"
	codeRateLimited     = "RATE_LIMITED"
	codeInternal        = "INTERNAL"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

var errRateLimited = errors.New("rate limit exceeded")

// use a single instance of Validate, it caches struct info
var validate = validator.New()

type addRecordRequest struct {
	SourceID string   `json:"source_id" validate:"required"`
	Quantity *float64 `json:"quantity" validate:"required"`
}

type updateRecordRequest struct {
	Quantity *float64 `json:"quantity" validate:"required"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	TraceID string `json:"trace_id"`
}

type recordsResponse struct {
	Records []emissions.Record `json:"records"`
	Totals  emissions.Totals   `json:"totals"`
}

type updateRecordResponse struct {
	Record  emissions.Record `json:"record"`
	Changed bool             `json:"changed"`
	Totals  emissions.Totals `json:"totals"`
}

type sourceResponse struct {
	emissions.EnergySource
	Label string `json:"label"`
}

// writeJSON encodes v before writing the status so an encoding failure is
// reported as a 500 rather than a truncated success.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.Error().Str("trace_id", traceID(r.Context())).Err(err).Msg("Failed to encode response")
		buf.Reset()
		status = http.StatusInternalServerError
		fallback := errorResponse{Error: "failed to encode response", Code: codeInternal, TraceID: traceID(r.Context())}
		if err := json.NewEncoder(&buf).Encode(fallback); err != nil {
			http.Error(w, fallback.Error, status)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error().Str("trace_id", traceID(r.Context())).Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	id := traceID(r.Context())
	ev := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}
	ev.Str("trace_id", id).Str("error_code", code).Err(err).Msg("request failed")

	s.writeJSON(w, r, status, errorResponse{Error: err.Error(), Code: code, TraceID: id})
}

// writeCalcError maps calculator errors to HTTP responses.
func (s *Server) writeCalcError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, emissions.ErrUnknownSource):
		s.writeError(w, r, http.StatusBadRequest, codeUnknownSource, err)
	case errors.Is(err, emissions.ErrRecordNotFound):
		s.writeError(w, r, http.StatusNotFound, codeNotFound, err)
	case errors.Is(err, emissions.ErrNonPositiveQuantity),
		errors.Is(err, emissions.ErrNegativeQuantity),
		errors.Is(err, emissions.ErrQuantityOutOfRange),
		errors.Is(err, emissions.ErrInvalidQuantity),
		errors.Is(err, emissions.ErrEmptyQuantity):
		s.writeError(w, r, http.StatusBadRequest, codeInvalidQuantity, err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	if err := validate.Struct(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, appinfo.Get())
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources := s.calc.Table().Sources()
	out := make([]sourceResponse, len(sources))
	for i, src := range sources {
		out[i] = sourceResponse{EnergySource: src, Label: src.DisplayLabel()}
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records := s.calc.Records()
	s.writeJSON(w, r, http.StatusOK, recordsResponse{
		Records: records,
		Totals:  emissions.SumRecords(records),
	})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.calc.Totals())
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req addRecordRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.calc.Records()
	rec, err := s.calc.Add(req.SourceID, *req.Quantity)
	if err != nil {
		s.writeCalcError(w, r, err)
		return
	}
	if err := s.commit(r.Context(), prev); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, err)
		return
	}
	s.metrics.calculations.WithLabelValues(rec.Source.ID).Inc()
	s.writeJSON(w, r, http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req updateRecordRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.calc.Records()
	rec, changed, err := s.calc.UpdateQuantity(r.PathValue("id"), *req.Quantity)
	if err != nil {
		s.writeCalcError(w, r, err)
		return
	}
	if changed {
		if err := s.commit(r.Context(), prev); err != nil {
			s.writeError(w, r, http.StatusInternalServerError, codeInternal, err)
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, updateRecordResponse{Record: rec, Changed: changed, Totals: s.calc.Totals()})
}

func (s *Server) handleRemoveRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.calc.Records()
	if err := s.calc.Remove(r.PathValue("id")); err != nil {
		s.writeCalcError(w, r, err)
		return
	}
	if err := s.commit(r.Context(), prev); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.calc.Records()
	s.calc.Reset()
	if err := s.commit(r.Context(), prev); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	records := s.calc.Records()

	// Render fully before writing headers so failures still produce a JSON error.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, records); err != nil {
		if errors.Is(err, export.ErrNoData) {
			s.writeError(w, r, http.StatusConflict, codeNoData, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, err)
		return
	}
	s.metrics.exports.WithLabelValues(string(format)).Inc()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.FileName(time.Now(), format)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error().Str("trace_id", traceID(r.Context())).Err(err).Msg("Failed to write export")
	}
}

type exportFileResponse struct {
	Path     string `json:"path"`
	Format   string `json:"format"`
	Location string `json:"location"`
}

// handleExportFile writes an export file into the server's configured
// location instead of streaming it to the client.
func (s *Server) handleExportFile(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.writeError(w, r, http.StatusNotImplemented, codeInternal, errors.New("file export is not configured"))
		return
	}

	q := r.URL.Query()
	formatName, locationName := q.Get("format"), q.Get("location")
	if formatName == "" {
		formatName = string(export.FormatCSV)
	}
	if locationName == "" {
		locationName = string(export.LocationInternal)
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	location, err := export.ParseLocation(locationName)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	path, err := s.exporter.ExportFile(s.calc.Records(), format, location)
	if err != nil {
		if errors.Is(err, export.ErrNoData) {
			s.writeError(w, r, http.StatusConflict, codeNoData, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, err)
		return
	}
	s.metrics.exports.WithLabelValues(string(format)).Inc()
	s.writeJSON(w, r, http.StatusCreated, exportFileResponse{Path: path, Format: string(format), Location: string(location)})
}
