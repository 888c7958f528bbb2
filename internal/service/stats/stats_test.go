package stats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func video(owner, short string, views int64) domain.EnrichmentRecord {
	return domain.EnrichmentRecord{
		InputURL:       "https://www.instagram.com/reel/" + short + "/",
		ShortCode:      short,
		OwnerUsername:  owner,
		VideoPlayCount: domain.Int64(views),
	}
}

func TestAggregateTotals(t *testing.T) {
	records := []domain.EnrichmentRecord{
		video("alice", "a1", 100),
		video("bob", "b1", 50),
		video("alice", "a2", 25),
		{InputURL: "https://www.instagram.com/reel/nofield/", OwnerUsername: "carol"},
		{InputURL: "https://www.instagram.com/reel/noowner/", VideoPlayCount: domain.Int64(999)},
		{OwnerUsername: "ghost"},
	}

	res := Aggregate(records, 10)

	assert.Equal(t, int64(175), res.TotalViews)
	assert.Equal(t, 3, res.TotalVideos)
	assert.Equal(t, []string{"alice", "bob"}, res.OwnerOrder)
	assert.Equal(t, []string{
		"https://www.instagram.com/reel/nofield/",
		"https://www.instagram.com/reel/noowner/",
	}, res.FailedInputs)

	alice := res.OwnerStats["alice"]
	require.NotNil(t, alice)
	assert.Equal(t, 2, alice.VideoCount)
	assert.Equal(t, int64(125), alice.TotalViews)
	assert.Equal(t, "alice", alice.FullName, "full name falls back to username")
	assert.Equal(t, "https://instagram.com/reel/a1/", alice.TopVideos[0].URL)
}

func TestAggregateZeroViewsStillCounts(t *testing.T) {
	res := Aggregate([]domain.EnrichmentRecord{video("alice", "a1", 0)}, 10)
	assert.Equal(t, 1, res.TotalVideos)
	assert.Equal(t, int64(0), res.TotalViews)
	assert.Empty(t, res.FailedInputs)
}

func TestAggregateTopVideosStableOrder(t *testing.T) {
	var records []domain.EnrichmentRecord
	for i, short := range []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12"} {
		views := int64(10)
		if i == 5 {
			views = 500
		}
		records = append(records, video([]string{"x", "y"}[i%2], short, views))
	}

	res := Aggregate(records, 10)
	require.Len(t, res.TopVideos, 10)

	got := make([]string, len(res.TopVideos))
	for i, v := range res.TopVideos {
		got[i] = v.ShortCode
	}
	want := []string{"t6", "t1", "t2", "t3", "t4", "t5", "t7", "t8", "t9", "t10"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("top videos mismatch (-want +got):\n%s", diff)
	}
}

func TestOwnersByViews(t *testing.T) {
	res := Aggregate([]domain.EnrichmentRecord{
		video("small", "s", 1),
		video("big", "b", 100),
		video("tie", "t", 1),
	}, 10)

	owners := res.OwnersByViews()
	names := []string{owners[0].Username, owners[1].Username, owners[2].Username}
	assert.Equal(t, []string{"big", "small", "tie"}, names)
}

func TestFormatCompact(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0K"},
		{1540, "1.5K"},
		{999_999, "1000.0K"},
		{1_000_000, "1.0M"},
		{1_234_567, "1.2M"},
		{1_500_000, "1.5M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCompact(tt.in), "FormatCompact(%d)", tt.in)
	}
}

func TestFormatCommas(t *testing.T) {
	assert.Equal(t, "1,234,567", FormatCommas(1234567))
	assert.Equal(t, "12", FormatCommas(12))
}
