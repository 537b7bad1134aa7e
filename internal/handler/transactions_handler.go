package handler

import (
	"net/http"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transactions: /v1/transactions
// ============================================================

type createTransactionRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	CategoryID  string  `json:"category_id"`
	Currency    string  `json:"currency,omitempty"`
	FileURL     string  `json:"file_url,omitempty"`
}

type updateTransactionRequest struct {
	Amount      *float64 `json:"amount"`
	Description *string  `json:"description"`
	CategoryID  *string  `json:"category_id"`
	Date        *string  `json:"date"`
}

func listTransactionsHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		q := r.URL.Query()
		filter := domain.TransactionFilter{
			Search:   q.Get("search"),
			Category: q.Get("category"),
			Date:     q.Get("date"),
			Limit:    parseLimit(r),
		}
		if filter.Date != "" {
			if _, err := parseDate("date", filter.Date); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		txs, err := svc.List(ctx, OwnerIDFromContext(ctx), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	}
}

func createTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		var req createTransactionRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		date, err := parseDate("date", req.Date)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := svc.Create(ctx, OwnerIDFromContext(ctx), &domain.NewTransaction{
			Amount:      req.Amount,
			Description: req.Description,
			Date:        date,
			CategoryID:  req.CategoryID,
			Currency:    req.Currency,
			FileURL:     req.FileURL,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("transaction.id", tx.ID))
		writeJSON(w, http.StatusCreated, tx)
	}
}

func updateTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/transactions/{transactionId}")
		defer span.End()

		id, err := transactionIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req updateTransactionRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		upd := &domain.TransactionUpdate{
			Amount:      req.Amount,
			Description: req.Description,
			CategoryID:  req.CategoryID,
		}
		if req.Date != nil {
			d, err := parseDate("date", *req.Date)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			if !d.IsZero() {
				upd.Date = &d
			}
		}

		tx, err := svc.Update(ctx, OwnerIDFromContext(ctx), id, upd)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func deleteTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/transactions/{transactionId}")
		defer span.End()

		id, err := transactionIDParam(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.Delete(ctx, OwnerIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// transactionIDParam returns the {transactionId} path param. Backend row ids
// are UUIDs, anything else is rejected before a request is made.
func transactionIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "transactionId")
	if _, err := uuid.Parse(id); err != nil {
		return "", &domain.ErrValidation{Field: "transactionId", Message: "must be a UUID"}
	}
	return id, nil
}
