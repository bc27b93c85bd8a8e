package util

// Extractor pulls an optional value out of in. ok=false means "try the next one".
type Extractor[In, Out any] func(in In) (Out, bool)

// FirstOf runs extractors in order and returns the first value reported ok.
func FirstOf[In, Out any](in In, extractors ...Extractor[In, Out]) (Out, bool) {
	for _, ex := range extractors {
		if ex == nil {
			continue
		}
		if v, ok := ex(in); ok {
			return v, true
		}
	}
	var zero Out
	return zero, false
}
