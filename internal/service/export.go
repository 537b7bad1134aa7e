package service

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var exportTracer = otel.Tracer("service/export")

const (
	csvBOM       = "\uFEFF"
	csvSeparator = ";"
	csvHeader    = "Fecha;Hora;Concepto;Cantidad;Tipo;Categoría;Moneda"

	defaultExportCurrency = "EUR"
)

// Export is a rendered spreadsheet-compatible CSV file.
type Export struct {
	Filename string
	Content  []byte
}

// ExportService renders the owner's transactions as CSV.
type ExportService struct {
	txs    port.TransactionStore
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewExportService creates the export service. Dates and times are
// rendered in timezone; an unknown zone falls back to UTC.
func NewExportService(txs port.TransactionStore, timezone string, logger *zap.Logger) *ExportService {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown export timezone, using UTC", zap.String("timezone", timezone), zap.Error(err))
		loc = time.UTC
	}
	return &ExportService{txs: txs, loc: loc, now: time.Now, logger: logger}
}

// Transactions renders every transaction of the owner, newest first.
func (s *ExportService) Transactions(ctx context.Context, ownerID string) (*Export, error) {
	ctx, span := exportTracer.Start(ctx, "ExportService.Transactions")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}

	txs, err := s.txs.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, &domain.ErrNotFound{Resource: "transactions"}
	}
	span.SetAttributes(attribute.Int("export.rows", len(txs)))

	var buf bytes.Buffer
	buf.WriteString(csvBOM)
	buf.WriteString(csvHeader)
	for _, tx := range txs {
		buf.WriteByte('\n')
		buf.WriteString(s.row(tx))
	}

	return &Export{
		Filename: "Mis_Finanzas_Bizum_" + s.now().UTC().Format(time.DateOnly) + ".csv",
		Content:  buf.Bytes(),
	}, nil
}

func (s *ExportService) row(tx domain.Transaction) string {
	local := tx.Date.In(s.loc)

	kind := "Gasto"
	category := "Sin categoría"
	if tx.Category != nil {
		if tx.Category.Type == domain.TypeIncome {
			kind = "Ingreso"
		}
		if tx.Category.Name != "" {
			category = tx.Category.Name
		}
	}

	currency := tx.Currency
	if currency == "" {
		currency = defaultExportCurrency
	}

	return strings.Join([]string{
		local.Format("2/1/2006"),
		local.Format("15:04"),
		quote(flatten(tx.Description)),
		strings.Replace(strconv.FormatFloat(tx.Amount, 'f', -1, 64), ".", ",", 1),
		kind,
		quote(category),
		currency,
	}, csvSeparator)
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return newlines.Replace(s)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
