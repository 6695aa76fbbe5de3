package adapter

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// Raw payloads are truncated before landing in a cell; Sheets rejects
// cells over 50000 characters.
const maxSheetCellLen = 48000

var sheetHeader = []any{"timestamp", "event_id", "agent_id", "type", "caller", "called", "transcript", "raw"}

// RowAppender appends rows to a spreadsheet.
type RowAppender interface {
	Append(ctx context.Context, row []any) error
	IsEmpty(ctx context.Context) (bool, error)
}

// SheetsAdapter appends one row per event to a Google spreadsheet,
// writing the header row first when the sheet is empty.
type SheetsAdapter struct {
	appender RowAppender
	log      *logging.Logger
}

// NewSheetsAdapter builds the Google Sheets backed adapter.
func NewSheetsAdapter(ctx context.Context, cfg config.SheetsConfig, log *logging.Logger) (*SheetsAdapter, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newSheetsAdapter(&sheetsAppender{svc: svc, spreadsheetID: cfg.SpreadsheetID}, log), nil
}

func newSheetsAdapter(appender RowAppender, log *logging.Logger) *SheetsAdapter {
	return &SheetsAdapter{appender: appender, log: log.Sub("action.sheets")}
}

// Name implements Adapter.
func (a *SheetsAdapter) Name() string { return "sheets" }

// Perform implements Adapter.
func (a *SheetsAdapter) Perform(ctx context.Context, inv Invocation) (domain.Outcome, error) {
	empty, err := a.appender.IsEmpty(ctx)
	if err != nil {
		return domain.Outcome{}, Classify("sheets", err)
	}
	if empty {
		if err := a.appender.Append(ctx, sheetHeader); err != nil {
			return domain.Outcome{}, Classify("sheets", err)
		}
	}

	ev := inv.Event
	raw := string(ev.Raw)
	if len(raw) > maxSheetCellLen {
		raw = raw[:maxSheetCellLen]
	}
	row := []any{
		ev.ReceivedAt.Format(time.RFC3339),
		ev.ID,
		ev.AgentID,
		ev.Type,
		ev.Caller,
		ev.Called,
		ev.Transcript,
		raw,
	}
	if err := a.appender.Append(ctx, row); err != nil {
		return domain.Outcome{}, Classify("sheets", err)
	}

	a.log.Info().Str("event", ev.ID).Msg("row appended")
	return domain.Outcome{Data: map[string]any{"appended": true, "header": empty}}, nil
}

type sheetsAppender struct {
	svc           *sheets.Service
	spreadsheetID string
}

func (s *sheetsAppender) Append(ctx context.Context, row []any) error {
	vr := &sheets.ValueRange{Values: [][]any{row}}
	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, "A1", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (s *sheetsAppender) IsEmpty(ctx context.Context) (bool, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, "A1:A1").Context(ctx).Do()
	if err != nil {
		return false, err
	}
	return len(resp.Values) == 0, nil
}
