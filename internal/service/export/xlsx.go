// Package export renders enrichment records as an .xlsx workbook.
package export

import (
	"fmt"
	"time"

	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/util"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the single worksheet in every export.
const SheetName = "Instagram Views Data"

// Column is one (header, key, width) entry of the column spec.
type Column struct {
	Header string
	Key    string
	Width  float64
}

// DefaultColumns lists every record field in report order.
var DefaultColumns = []Column{
	{Header: "Video URL", Key: "inputUrl", Width: 50},
	{Header: "Video ID", Key: "id", Width: 20},
	{Header: "Short Code", Key: "shortCode", Width: 15},
	{Header: "Username", Key: "ownerUsername", Width: 20},
	{Header: "Full Name", Key: "ownerFullName", Width: 25},
	{Header: "Video Views", Key: "videoPlayCount", Width: 15},
	{Header: "Likes Count", Key: "likesCount", Width: 15},
	{Header: "Comments Count", Key: "commentsCount", Width: 15},
	{Header: "Timestamp", Key: "timestamp", Width: 20},
	{Header: "Video Duration", Key: "videoDuration", Width: 15},
}

// Exporter builds a spreadsheet from records.
type Exporter interface {
	Build(records []domain.EnrichmentRecord, columns []Column) ([]byte, error)
}

type XLSXExporter struct {
	logger *zap.Logger
}

func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: util.OrNop(logger)}
}

// FileName returns "instagram_views_<channel>_<YYYY-MM-DD>.xlsx".
func FileName(channelName string, at time.Time) string {
	return fmt.Sprintf("instagram_views_%s_%s.xlsx", channelName, at.Format("2006-01-02"))
}

// Build writes a header row (bold, grey fill) and one row per record. Missing
// numeric fields are written as 0.
func (x *XLSXExporter) Build(records []domain.EnrichmentRecord, columns []Column) ([]byte, error) {
	if len(columns) == 0 {
		columns = DefaultColumns
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			x.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col.Header
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if col.Width > 0 {
			if err := f.SetColWidth(SheetName, name, name, col.Width); err != nil {
				return nil, fmt.Errorf("set column width: %w", err)
			}
		}
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E0E0E0"}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastHeader, style); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}

	for i := range records {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = cellValue(&records[i], col.Key)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	x.logger.Debug("Workbook built", zap.Int("rows", len(records)), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func cellValue(r *domain.EnrichmentRecord, key string) any {
	switch key {
	case "inputUrl":
		return r.InputURL
	case "id":
		return r.ID
	case "shortCode":
		return r.ShortCode
	case "ownerUsername":
		return r.OwnerUsername
	case "ownerFullName":
		return r.OwnerFullName
	case "videoPlayCount":
		return derefInt(r.VideoPlayCount)
	case "likesCount":
		return derefInt(r.LikesCount)
	case "commentsCount":
		return derefInt(r.CommentsCount)
	case "timestamp":
		return r.Timestamp
	case "videoDuration":
		if r.VideoDuration == nil {
			return 0.0
		}
		return *r.VideoDuration
	default:
		return ""
	}
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
