package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxUploadSize bounds a single receipt upload.
const maxUploadSize = 10 << 20

// ============================================================
// Receipt files: /v1/files
// ============================================================

func listFilesHandler(svc *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/files")
		defer span.End()

		files, err := svc.List(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, files)
	}
}

func uploadFileHandler(svc *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/files")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<10)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, domain.CodeValidation, "file exceeds "+strconv.Itoa(maxUploadSize>>20)+" MB")
				return
			}
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "multipart form expected"}, logger)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "required"}, logger)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			handleServiceError(w, &domain.ErrValidation{Field: "file", Message: "unreadable"}, logger)
			return
		}

		stored, err := svc.Upload(ctx, OwnerIDFromContext(ctx), header.Filename, header.Header.Get("Content-Type"), data)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, stored)
	}
}

func deleteFileHandler(svc *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/files/{name}")
		defer span.End()

		if err := svc.Delete(ctx, OwnerIDFromContext(ctx), chi.URLParam(r, "name")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
