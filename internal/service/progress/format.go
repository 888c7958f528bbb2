// Package progress renders campaign progress into a voice channel name and
// recovers it again. The channel name is the persisted state.
package progress

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kapu/reel-views-bot/internal/domain"
	"github.com/kapu/reel-views-bot/internal/service/stats"
)

// DefaultPrefix starts every progress channel name.
const DefaultPrefix = "📊 Progress: "

// Percentage returns current/target as a percentage capped at 100.
// A non-positive target yields 0.
func Percentage(current, target int64) float64 {
	if target <= 0 {
		return 0
	}
	return math.Min(float64(current)/float64(target)*100, 100)
}

// FormatPercent renders p with one decimal place.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64)
}

// Render builds the channel name "<prefix><name> (<cur>/<target>) <pct>%".
func Render(prefix, campaignName string, current, target int64) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(campaignName)
	b.WriteString(" (")
	b.WriteString(stats.FormatCompact(current))
	b.WriteByte('/')
	b.WriteString(stats.FormatCompact(target))
	b.WriteString(") ")
	b.WriteString(FormatPercent(Percentage(current, target)))
	b.WriteByte('%')
	return b.String()
}

// Parser recovers settings from channel names carrying a fixed prefix.
type Parser struct {
	prefix  string
	pattern *regexp.Regexp
}

func NewParser(prefix string) *Parser {
	return &Parser{
		prefix:  prefix,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(.+?) \([\d.,KM]+/([\d.,KM]+)\)`),
	}
}

// Prefix returns the channel name prefix this parser matches.
func (p *Parser) Prefix() string {
	return p.prefix
}

// Parse returns the campaign name and target encoded in name. Compacted targets
// decode approximately ("1.2M" is 1,200,000). ok is false when name does not
// have the expected shape.
func (p *Parser) Parse(name string) (domain.ProgressSettings, bool) {
	m := p.pattern.FindStringSubmatch(name)
	if m == nil {
		return domain.ProgressSettings{}, false
	}
	target, ok := DecodeCompact(m[2])
	if !ok {
		return domain.ProgressSettings{}, false
	}
	return domain.ProgressSettings{CampaignName: m[1], Target: target}, true
}

// Parse uses the default prefix.
func Parse(name string) (domain.ProgressSettings, bool) {
	return defaultParser.Parse(name)
}

var defaultParser = NewParser(DefaultPrefix)

// DecodeCompact reverses stats.FormatCompact: "1.5M", "12.0K", "1,234".
func DecodeCompact(s string) (int64, bool) {
	var mult float64
	switch {
	case strings.Contains(s, "M"):
		mult = 1_000_000
	case strings.Contains(s, "K"):
		mult = 1_000
	default:
		n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	num := strings.TrimRight(strings.ReplaceAll(s, ",", ""), "KM")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * mult)), true
}
