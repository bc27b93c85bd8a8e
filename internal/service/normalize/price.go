package normalize

import (
	"strings"

	"PricePull/pkg/util"

	"github.com/shopspring/decimal"
)

// PriceFields are the record fields that may carry the price, best first.
var PriceFields = []string{"price", "dpr1", "dpr0", "avgPrc", "value", "priceValue"}

// ParsePrice reads a feed price such as "12,340" or "9800.5" and truncates it
// to whole won. Placeholders ("-", "") and non-positive values are rejected.
func ParsePrice(s string) (int, bool) {
	s = strings.NewReplacer(",", "", " ", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	n := d.IntPart()
	if n <= 0 {
		return 0, false
	}
	return int(n), true
}

func priceField(name string) util.Extractor[map[string]string, int] {
	return func(fields map[string]string) (int, bool) {
		return ParsePrice(fields[name])
	}
}

var priceExtractors = func() []util.Extractor[map[string]string, int] {
	out := make([]util.Extractor[map[string]string, int], 0, len(PriceFields))
	for _, f := range PriceFields {
		out = append(out, priceField(f))
	}
	return out
}()

// ExtractPrice returns the first usable price among PriceFields.
func ExtractPrice(fields map[string]string) (int, bool) {
	return util.FirstOf(fields, priceExtractors...)
}
