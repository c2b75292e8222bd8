package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/model"
	"github.com/jakechorley/live-schedule/pkg/db"
	"github.com/jakechorley/live-schedule/pkg/export"
)

// ListRequest filters the schedule read path. Empty fields mean no filter.
type ListRequest struct {
	AccountIDs []int64
	Date       string
}

func (r ListRequest) filter() (db.ScheduleFilter, error) {
	ids, err := normalizeAccountIDs(r.AccountIDs)
	if err != nil {
		return db.ScheduleFilter{}, err
	}

	filter := db.ScheduleFilter{AccountIDs: ids}
	if r.Date != "" {
		date, err := model.ParseDate(r.Date)
		if err != nil {
			return db.ScheduleFilter{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		filter.Date = &date
	}
	return filter, nil
}

// ListSchedules returns schedule rows with account and employee names, ordered by date and start time
func ListSchedules(ctx context.Context, store db.ScheduleReader, logger *zap.Logger, req ListRequest) ([]db.ScheduleView, error) {
	filter, err := req.filter()
	if err != nil {
		return nil, err
	}

	logger.Debug("Listing live schedules", zap.Int64s("account_ids", filter.AccountIDs), zap.String("date", req.Date))

	views, err := store.ListSchedules(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	logger.Debug("Found live schedules", zap.Int("count", len(views)))
	return views, nil
}

// ExportResult describes a written workbook
type ExportResult struct {
	Filename string
	Rows     int
}

// ExportSchedules writes the filtered schedules to w as an Excel workbook
func ExportSchedules(ctx context.Context, store db.ScheduleReader, logger *zap.Logger, req ListRequest, now time.Time, w io.Writer) (*ExportResult, error) {
	views, err := ListSchedules(ctx, store, logger, req)
	if err != nil {
		return nil, err
	}

	if err := export.WriteWorkbook(w, views); err != nil {
		return nil, fmt.Errorf("failed to export schedules: %w", err)
	}

	result := &ExportResult{Filename: export.Filename(now), Rows: len(views)}
	logger.Info("Exported live schedules", zap.String("filename", result.Filename), zap.Int("rows", result.Rows))
	return result, nil
}

// SetBatchStatus finalizes (isDraft=false) or reverts a batch and returns the number of rows updated
func SetBatchStatus(ctx context.Context, store db.BatchStatusStore, logger *zap.Logger, batchID int64, isDraft bool) (int64, error) {
	if batchID <= 0 {
		return 0, fmt.Errorf("%w: invalid batch id %d", ErrInvalidRequest, batchID)
	}

	updated, err := store.SetBatchDraftStatus(ctx, batchID, isDraft)
	if err != nil {
		return 0, fmt.Errorf("failed to update batch %d: %w", batchID, err)
	}

	logger.Info("Updated batch status",
		zap.Int64("batch_id", batchID),
		zap.Bool("is_draft", isDraft),
		zap.Int64("rows", updated))
	return updated, nil
}
