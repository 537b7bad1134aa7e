package handler

import (
	"net/http"
	"strconv"

	"github.com/boddenberg/finanzas-bfa-go/internal/service"

	"go.uber.org/zap"
)

func exportTransactionsHandler(svc *service.ExportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/export/transactions.csv")
		defer span.End()

		out, err := svc.Transactions(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+out.Filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(out.Content)))
		w.WriteHeader(http.StatusOK)
		w.Write(out.Content)
	}
}
