package dedup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/stretchr/testify/assert"
)

func rec(input, short, id string) domain.EnrichmentRecord {
	return domain.EnrichmentRecord{InputURL: input, ShortCode: short, ID: id}
}

func inputs(records []domain.EnrichmentRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.InputURL + "|" + r.ShortCode + "|" + r.ID
	}
	return out
}

func TestNormalizeInputURL(t *testing.T) {
	assert.Equal(t, "https://instagram.com/reel/abc", NormalizeInputURL("https://www.instagram.com/reel/ABC/?x=1"))
	assert.Equal(t, "https://instagram.com/p/q", NormalizeInputURL("https://instagram.com/p/Q//"))
	assert.Equal(t, "", NormalizeInputURL(""))
}

func TestKeysSkipsEmpty(t *testing.T) {
	assert.Equal(t, []string{"abc", "1"}, Keys(rec("", "ABC", "1")))
	assert.Empty(t, Keys(rec("", "", "")))
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name string
		in   []domain.EnrichmentRecord
		want []string
	}{
		{
			name: "same url different host and case",
			in: []domain.EnrichmentRecord{
				rec("https://www.instagram.com/reel/ABC/", "ABC", "1"),
				rec("https://instagram.com/reel/abc", "", ""),
			},
			want: []string{"https://www.instagram.com/reel/ABC/|ABC|1"},
		},
		{
			name: "shortcode match",
			in: []domain.EnrichmentRecord{
				rec("u1", "Xy", ""),
				rec("u2", "xY", ""),
				rec("u3", "zz", ""),
			},
			want: []string{"u1|Xy|", "u3|zz|"},
		},
		{
			name: "shared namespace across fields",
			in: []domain.EnrichmentRecord{
				rec("u1", "s1", "777"),
				rec("u2", "777", "9"),
			},
			want: []string{"u1|s1|777"},
		},
		{
			name: "records without identifiers always pass",
			in: []domain.EnrichmentRecord{
				rec("", "", ""),
				rec("", "", ""),
				rec("u1", "", ""),
			},
			want: []string{"||", "||", "u1||"},
		},
		{
			name: "duplicate does not claim new identifiers",
			in: []domain.EnrichmentRecord{
				rec("u1", "a", ""),
				rec("u1", "b", ""),
				rec("u2", "b", ""),
			},
			want: []string{"u1|a|", "u2|b|"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inputs(Dedup(tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Dedup() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDedupOutputSharesNoIdentifier(t *testing.T) {
	in := []domain.EnrichmentRecord{
		rec("a", "1", "x"), rec("b", "2", "x"), rec("c", "1", "y"),
		rec("d", "3", "z"), rec("A", "4", "w"), rec("e", "5", "v"),
	}
	out := Dedup(in)

	claimed := map[string]int{}
	for i, r := range out {
		for _, k := range Keys(r) {
			if prev, ok := claimed[k]; ok {
				t.Fatalf("identifier %q shared by output records %d and %d", k, prev, i)
			}
			claimed[k] = i
		}
	}
	assert.Equal(t, []string{"a|1|x", "d|3|z", "e|5|v"}, inputs(out))
}
