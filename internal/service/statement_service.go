package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
	"github.com/edupoint/rewards-api/pkg/export"
)

type statementLedger interface {
	GetAccount(ctx context.Context, studentID string, currency models.Currency) (*models.StudentCurrencyAccount, error)
	ListTransactionsAsc(ctx context.Context, studentID string, currency models.Currency) ([]models.LedgerTransaction, error)
}

// StatementFormat selects the rendered output type.
type StatementFormat string

const (
	StatementCSV StatementFormat = "csv"
	StatementPDF StatementFormat = "pdf"
)

// Statement is a rendered account history document.
type Statement struct {
	FileName    string
	ContentType string
	Body        []byte
}

// StatementService renders a student's transaction history with running
// balances as a downloadable document.
type StatementService struct {
	ledger statementLedger
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewStatementService constructs the service.
func NewStatementService(ledger statementLedger, logger *zap.Logger) *StatementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementService{
		ledger: ledger,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

var statementHeaders = []string{"Date", "Type", "Reference", "Description", "Amount", "Balance"}

// Render builds the statement for one student and currency.
func (s *StatementService) Render(ctx context.Context, studentID string, currency models.Currency, format StatementFormat) (*Statement, error) {
	if !currency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid currency")
	}
	if format != StatementCSV && format != StatementPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	account, err := s.ledger.GetAccount(ctx, studentID, currency)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account == nil {
		return nil, appErrors.Clone(appErrors.ErrAccountNotFound, "no account for student")
	}

	transactions, err := s.ledger.ListTransactionsAsc(ctx, studentID, currency)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transactions")
	}

	dataset := export.Dataset{Headers: statementHeaders}
	running := int64(0)
	for _, txn := range transactions {
		running += txn.Amount
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":        txn.CreatedAt.Format("2006-01-02 15:04"),
			"Type":        string(txn.ReferenceType),
			"Reference":   txn.ReferenceID,
			"Description": txn.Description,
			"Amount":      fmt.Sprintf("%+d", txn.Amount),
			"Balance":     fmt.Sprintf("%d", running),
		})
	}
	if running != account.Balance {
		s.logger.Warn("statement running balance disagrees with cached balance",
			zap.String("student_id", studentID),
			zap.String("currency", string(currency)),
			zap.Int64("running", running),
			zap.Int64("cached", account.Balance))
	}

	title := fmt.Sprintf("%s statement - student %s", currency, studentID)
	base := fmt.Sprintf("statement_%s_%s", strings.ToLower(string(currency)), studentID)

	switch format {
	case StatementPDF:
		body, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &Statement{FileName: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &Statement{FileName: base + ".csv", ContentType: "text/csv", Body: body}, nil
	}
}
