package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildWritesHeaderAndRows(t *testing.T) {
	dur := 12.5
	records := []domain.EnrichmentRecord{
		{
			InputURL:       "https://www.instagram.com/reel/A/",
			ID:             "1",
			ShortCode:      "A",
			OwnerUsername:  "alice",
			VideoPlayCount: domain.Int64(1500),
			VideoDuration:  &dur,
		},
		{InputURL: "https://www.instagram.com/reel/B/", OwnerUsername: "bob"},
	}

	data, err := NewXLSXExporter(nil).Build(records, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Video URL", rows[0][0])
	assert.Equal(t, "Video Duration", rows[0][9])
	assert.Equal(t, "https://www.instagram.com/reel/A/", rows[1][0])
	assert.Equal(t, "1500", rows[1][5])
	assert.Equal(t, "12.5", rows[1][9])
	assert.Equal(t, "0", rows[2][5], "missing views are written as 0")

	width, err := f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	assert.Equal(t, 50.0, width)
}

func TestBuildCustomColumns(t *testing.T) {
	data, err := NewXLSXExporter(nil).Build([]domain.EnrichmentRecord{{ShortCode: "Z"}}, []Column{
		{Header: "Code", Key: "shortCode", Width: 10},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Code"}, {"Z"}}, rows)
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "instagram_views_user-a_2026-03-09.xlsx", FileName("user-a", at))
}
