package handler

import (
	"net/http"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Bizum: recipient lookup, send, own code
// ============================================================

func lookupBizumRecipientHandler(svc *service.BizumService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/bizum/recipients/{code}")
		defer span.End()

		rec, err := svc.LookupRecipient(ctx, OwnerIDFromContext(ctx), chi.URLParam(r, "code"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func sendBizumHandler(svc *service.BizumService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/bizum/transfers")
		defer span.End()

		var t domain.BizumTransfer
		if err := decodeJSON(r, &t); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		receipt, err := svc.Send(ctx, OwnerIDFromContext(ctx), AccessTokenFromContext(ctx), &t)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

func myBizumCodeHandler(svc *service.BizumService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/profile/bizum-code")
		defer span.End()

		code, err := svc.MyCode(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"bizumCode": code})
	}
}
