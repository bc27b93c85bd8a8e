package kamis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"PricePull/internal/domain/models"
	"PricePull/pkg/util"

	"github.com/clbanning/mxj/v2"
)

const htmlSniffLen = 100

var utf8BOM = []byte("\xef\xbb\xbf")

// Field names tried in order. The first non-empty value wins, except for prices
// where every candidate is kept for the normalizer.
var (
	dateFields   = []string{"regday", "lastest_day", "date"}
	yearFields   = []string{"yyyy", "year"}
	regionFields = []string{"countyname", "county_name", "region"}
	marketFields = []string{"marketname", "market_name", "market"}
	gradeFields  = []string{"productrankcode", "rank_code", "rank"}
)

type record = map[string]any

// Parse classifies and decodes a feed body into raw observations.
// An empty but well-formed payload yields an empty slice and no error.
func Parse(body []byte) ([]models.RawObservation, error) {
	text := bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: empty body", models.ErrFeedFormat)
	}
	if looksLikeHTML(text) {
		return nil, fmt.Errorf("%w: html page instead of data", models.ErrFeedFormat)
	}

	tree, err := decode(text)
	if err != nil {
		return nil, err
	}
	if code, ok := findErrorCode(tree); ok && !isOKCode(code) {
		return nil, &models.FeedLogicError{Code: code}
	}

	var items []record
	collectItems(tree, &items)

	out := make([]models.RawObservation, 0, len(items))
	for _, it := range items {
		out = append(out, toRaw(it))
	}
	return out, nil
}

func looksLikeHTML(text []byte) bool {
	head := text
	if len(head) > htmlSniffLen {
		head = head[:htmlSniffLen]
	}
	lower := bytes.ToLower(head)
	return bytes.HasPrefix(lower, []byte("<!doctype")) ||
		bytes.HasPrefix(lower, []byte("<html")) ||
		bytes.Contains(lower, []byte("<html"))
}

func decode(text []byte) (record, error) {
	var jsonErr error
	if i := bytes.IndexByte(text, '{'); i >= 0 {
		tree, err := decodeJSON(text[i:])
		if err == nil {
			return tree, nil
		}
		jsonErr = err
	}
	if text[0] == '<' {
		m, err := mxj.NewMapXml(text)
		if err != nil {
			return nil, fmt.Errorf("%w: xml: %v", models.ErrFeedFormat, err)
		}
		return record(m), nil
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("%w: json: %v", models.ErrFeedFormat, jsonErr)
	}
	return nil, fmt.Errorf("%w: neither json nor xml", models.ErrFeedFormat)
}

// decodeJSON reads the first JSON value of text and ignores anything after it.
func decodeJSON(text []byte) (record, error) {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top level is %T, want object", v)
	}
	return m, nil
}

func isOKCode(code string) bool {
	switch strings.TrimSpace(code) {
	case "", "0", "000":
		return true
	}
	return false
}

// findErrorCode looks for an error_code leaf anywhere in the tree. A "data" node
// holding only bare strings (e.g. ["001"]) is the feed's other way of saying the same.
func findErrorCode(node any) (string, bool) {
	switch v := node.(type) {
	case map[string]any:
		if raw, ok := v["error_code"]; ok {
			return leaf(raw), true
		}
		if data, ok := v["data"].([]any); ok && len(data) > 0 && allStrings(data) {
			return leaf(data[0]), true
		}
		for _, k := range sortedKeys(v) {
			if code, ok := findErrorCode(v[k]); ok {
				return code, true
			}
		}
	case []any:
		for _, child := range v {
			if code, ok := findErrorCode(child); ok {
				return code, true
			}
		}
	}
	return "", false
}

func allStrings(vs []any) bool {
	for _, v := range vs {
		if _, ok := v.(string); !ok {
			return false
		}
	}
	return true
}

// collectItems appends every record found under an "item" or "items" key.
// Single objects and arrays of objects are flattened the same way.
func collectItems(node any, out *[]record) {
	switch v := node.(type) {
	case map[string]any:
		for _, k := range sortedKeys(v) {
			if k == "item" || k == "items" {
				flattenRecords(v[k], out)
				continue
			}
			collectItems(v[k], out)
		}
	case []any:
		for _, child := range v {
			collectItems(child, out)
		}
	}
}

func flattenRecords(node any, out *[]record) {
	switch v := node.(type) {
	case map[string]any:
		_, nestedItem := v["item"]
		_, nestedItems := v["items"]
		if nestedItem || nestedItems {
			collectItems(v, out)
			return
		}
		*out = append(*out, v)
	case []any:
		for _, child := range v {
			flattenRecords(child, out)
		}
	}
}

func toRaw(rec record) models.RawObservation {
	fields := make(map[string]string, len(rec))
	for k, v := range rec {
		if s := leaf(v); s != "" {
			fields[k] = s
		}
	}
	first := func(names []string) string {
		extractors := make([]util.Extractor[map[string]string, string], 0, len(names))
		for _, name := range names {
			extractors = append(extractors, fieldValue(name))
		}
		v, _ := util.FirstOf(fields, extractors...)
		return v
	}
	return models.RawObservation{
		Fields:  fields,
		RawDate: first(dateFields),
		Year:    first(yearFields),
		Region:  first(regionFields),
		Market:  first(marketFields),
		Grade:   first(gradeFields),
	}
}

func fieldValue(name string) util.Extractor[map[string]string, string] {
	return func(fields map[string]string) (string, bool) {
		v, ok := fields[name]
		return v, ok && v != ""
	}
}

// leaf renders a scalar-ish node as trimmed text. Lists yield their first
// non-empty element; XML elements with attributes yield their text content.
func leaf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		for _, e := range t {
			if s := leaf(e); s != "" {
				return s
			}
		}
		return ""
	case map[string]any:
		if text, ok := t["#text"]; ok {
			return leaf(text)
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
