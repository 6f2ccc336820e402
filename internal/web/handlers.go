// Package web is the HTTP surface: multipart upload feeding the pipeline,
// artifact download out of session directories, and a health probe.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dataq-tools/pulseweb/internal/log"
	"github.com/dataq-tools/pulseweb/internal/model"
	"github.com/dataq-tools/pulseweb/internal/pipeline"
	"github.com/dataq-tools/pulseweb/internal/session"
)

// uploadField is the multipart form field carrying the recording.
const uploadField = "wdqFile"

// allowedExtensions is the server-side extension allow-list, matched
// case-insensitively against the client-supplied filename.
var allowedExtensions = map[string]bool{
	".wdq": true,
	".wdh": true,
	".wdc": true,
}

// Processor runs the analysis pipeline for one session. Satisfied by
// *pipeline.Orchestrator; tests inject fakes.
type Processor interface {
	Process(ctx context.Context, sess session.Session) (pipeline.Outcome, error)
}

type Config struct {
	MaxUploadBytes int64
	IntakeDir      string
}

type handler struct {
	config    Config
	store     *session.Store
	processor Processor
}

// NewHandler wires the routes. The intake directory is created up front;
// files land there only for the duration of one upload request.
func NewHandler(config Config, store *session.Store, processor Processor) (http.Handler, error) {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 100 << 20
	}
	if config.IntakeDir == "" {
		return nil, fmt.Errorf("missing intake directory")
	}
	if err := os.MkdirAll(config.IntakeDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating intake dir %s: %w", config.IntakeDir, err)
	}

	h := &handler{
		config:    config,
		store:     store,
		processor: processor,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", h.handleUpload)
	mux.HandleFunc("GET /download/{session}/{file...}", h.handleDownload)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	return mux, nil
}

// UploadResponse is the success shape of POST /upload.
type UploadResponse struct {
	Success     bool                 `json:"success"`
	SessionID   string               `json:"sessionId"`
	Filename    string               `json:"filename"`
	Analysis    model.AnalysisRecord `json:"analysis"`
	DownloadURL *string              `json:"downloadUrl"`
}

// ErrorResponse is the failure shape of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

func (h *handler) handleHealth(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, HealthResponse{OK: true, Service: "pulseweb"})
}

func (h *handler) handleUpload(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	request.Body = http.MaxBytesReader(writer, request.Body, h.config.MaxUploadBytes)

	file, header, err := request.FormFile(uploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeFailure(ctx, writer, &model.ValidationError{Reason: model.ErrTooBig.Error()})
			return
		}
		writeFailure(ctx, writer, &model.ValidationError{Reason: "missing multipart field " + uploadField})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	filename := filepath.Base(header.Filename)
	if ext := strings.ToLower(filepath.Ext(filename)); !allowedExtensions[ext] {
		writeFailure(ctx, writer, &model.ValidationError{
			Reason: fmt.Sprintf("unsupported file extension %q, expected .wdq, .wdh or .wdc", ext),
		})
		return
	}

	intake, err := h.saveIntake(file, filename)
	if err != nil {
		writeFailure(ctx, writer, fmt.Errorf("storing upload: %w", err))
		return
	}
	// the intake copy is removed on every path, success or failure
	defer func() {
		_ = os.RemoveAll(filepath.Dir(intake))
	}()

	sess, err := h.store.Create(ctx, intake, filename)
	if err != nil {
		writeFailure(ctx, writer, err)
		return
	}
	ctx = log.ContextAttrs(ctx, slog.String("session_id", sess.ID))
	slog.InfoContext(ctx, "upload accepted", "filename", filename, "size", header.Size)

	outcome, err := h.processor.Process(ctx, sess)
	if err != nil {
		writeFailure(ctx, writer, err)
		return
	}

	response := UploadResponse{
		Success:   true,
		SessionID: sess.ID,
		Filename:  filename,
		Analysis:  outcome.Analysis,
	}
	if outcome.ChartFile != "" {
		url := "/download/" + sess.ID + "/" + outcome.ChartFile
		response.DownloadURL = &url
	}
	writeJSON(writer, http.StatusOK, response)
}

func (h *handler) handleDownload(writer http.ResponseWriter, request *http.Request) {
	id := request.PathValue("session")
	name := request.PathValue("file")

	path, err := h.store.Resolve(id, name)
	if err != nil {
		writeFailure(request.Context(), writer, err)
		return
	}
	http.ServeFile(writer, request, path)
}

// saveIntake writes the multipart part into the intake area. The file
// keeps the upload's base name so the converter sees the extension it
// keys its format detection on.
func (h *handler) saveIntake(part multipart.File, filename string) (string, error) {
	dir, err := os.MkdirTemp(h.config.IntakeDir, "intake-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	out, err := os.Create(path)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	_, err = io.Copy(out, part)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return path, nil
}

// writeFailure maps the error taxonomy onto HTTP statuses: validation
// 400, missing download 404, everything else (stage failures, missing
// interpreter, IO) 500. The message carries the failing stage's captured
// diagnostics where there are any.
func writeFailure(ctx context.Context, writer http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var validation *model.ValidationError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	}

	message := err.Error()
	var stageErr *model.StageError
	if errors.As(err, &stageErr) && stageErr.Stderr != "" {
		message = message + ": " + strings.TrimSpace(stageErr.Stderr)
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "status", status, "error", err)
	} else {
		slog.DebugContext(ctx, "request rejected", "status", status, "error", err)
	}
	writeJSON(writer, status, ErrorResponse{Error: message})
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}
