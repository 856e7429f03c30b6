package evmvc

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/text/language"
)

// Headers is an HTTP header map. Values are stored in insertion order per
// name; names are compared case-insensitively (canonicalized to lower
// case internally), matching the teacher's Headers map (headers.go) but
// generalized to preserve multiple values per name in order, as §3/§4.6
// require.
type Headers map[string][]string

// Get returns the values associated with key, or nil.
func (hs Headers) Get(key string) []string {
	return hs[strings.ToLower(key)]
}

// First returns the first value associated with key, or "".
func (hs Headers) First(key string) string {
	if vs := hs.Get(key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Set replaces any values associated with key.
func (hs Headers) Set(key string, values ...string) {
	hs[strings.ToLower(key)] = values
}

// Add appends value to the entries associated with key.
func (hs Headers) Add(key, value string) {
	k := strings.ToLower(key)
	hs[k] = append(hs[k], value)
}

// Delete removes all values associated with key.
func (hs Headers) Delete(key string) {
	delete(hs, strings.ToLower(key))
}

// Has reports whether key has at least one value containing token,
// compared case-insensitively, per RFC 7230 list syntax.
func (hs Headers) Has(key, token string) bool {
	return httpguts.HeaderValuesContainsToken(hs.Get(key), token)
}

// Header is a single named, multi-valued HTTP header, mirroring the
// teacher's Header (header.go) as a standalone value rather than a map
// entry, for call sites that want one.
type Header struct {
	Name   string
	Values []string
}

// FirstValue returns the first value of h, or "" if h is nil or empty.
func (h *Header) FirstValue() string {
	if h == nil || len(h.Values) == 0 {
		return ""
	}
	return h.Values[0]
}

// Attribute parses a single header value of the shape
// "a; k1=v1; k2=v2" and returns the value for key, per §4.6. attrSep
// separates attributes (default ';'), kvSep separates a key from its value
// (default '='). Whitespace around keys and values is trimmed. Returns ""
// and false if key is not present.
func Attribute(value, key string, attrSep, kvSep byte) (string, bool) {
	for _, part := range splitByte(value, attrSep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		k, v, found := cutByte(part, kvSep)
		k = strings.TrimSpace(k)
		if !strings.EqualFold(k, key) {
			continue
		}

		if !found {
			return "", true
		}

		v = strings.TrimSpace(v)
		v = strings.Trim(v, `"`)
		return v, true
	}

	return "", false
}

// Flag reports whether the bare token flag is present among the
// semicolon-separated attributes of value (e.g. Flag("a; secure", "secure")
// is true).
func Flag(value, flag string) bool {
	for _, part := range splitByte(value, ';') {
		part = strings.TrimSpace(part)
		if strings.EqualFold(part, flag) {
			return true
		}
	}
	return false
}

func splitByte(s string, sep byte) []string {
	return strings.Split(s, string(sep))
}

func cutByte(s string, sep byte) (before, after string, found bool) {
	if i := strings.IndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

// EncodingKind is the content-coding a single Accept-Encoding entry names.
type EncodingKind uint8

// Encoding kinds recognized by the Accept-Encoding parser (§3).
const (
	EncodingUnsupported EncodingKind = iota
	EncodingGzip
	EncodingDeflate
	EncodingStar
)

// AcceptEncoding is a single parsed, weighted Accept-Encoding entry.
type AcceptEncoding struct {
	Kind   EncodingKind
	Weight float64
}

// ParseAcceptEncoding parses the Accept-Encoding header value into a list
// of (encoding-kind, weight) pairs sorted descending by weight, with ties
// broken by source order (§3, §4.6, §8 stability property). When an entry
// omits "q=", its implicit weight decreases slightly by index so that
// source order is preserved under the stable sort among otherwise-equal
// weights.
func ParseAcceptEncoding(header string) []AcceptEncoding {
	if header == "" {
		return nil
	}

	fields := strings.Split(header, ",")
	out := make([]AcceptEncoding, 0, len(fields))

	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}

		name, rest, _ := cutByte(f, ';')
		name = strings.ToLower(strings.TrimSpace(name))

		weight := 1.0 - float64(i)*1e-6
		if q, ok := Attribute(rest, "q", ';', '='); ok {
			if w, err := strconv.ParseFloat(q, 64); err == nil {
				weight = w
			}
		}

		var kind EncodingKind
		switch name {
		case "gzip", "x-gzip":
			kind = EncodingGzip
		case "deflate":
			kind = EncodingDeflate
		case "*":
			kind = EncodingStar
		default:
			kind = EncodingUnsupported
		}

		out = append(out, AcceptEncoding{Kind: kind, Weight: weight})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight > out[j].Weight
	})

	return out
}

// PreferredEncoding reports whether gzip or deflate is acceptable and
// preferred (weight > 0) from an already-parsed, sorted list, favoring
// gzip on an exact tie since it is universally supported.
func PreferredEncoding(accepted []AcceptEncoding) EncodingKind {
	bestGzip, bestDeflate, starWeight := -1.0, -1.0, -1.0

	for _, ae := range accepted {
		switch ae.Kind {
		case EncodingGzip:
			if ae.Weight > bestGzip {
				bestGzip = ae.Weight
			}
		case EncodingDeflate:
			if ae.Weight > bestDeflate {
				bestDeflate = ae.Weight
			}
		case EncodingStar:
			if ae.Weight > starWeight {
				starWeight = ae.Weight
			}
		}
	}

	if bestGzip <= 0 && starWeight > 0 {
		bestGzip = starWeight
	}
	if bestDeflate <= 0 && starWeight > 0 {
		bestDeflate = starWeight
	}

	switch {
	case bestGzip > 0 && bestGzip >= bestDeflate:
		return EncodingGzip
	case bestDeflate > 0:
		return EncodingDeflate
	default:
		return EncodingUnsupported
	}
}

// AcceptLanguage is a single parsed, weighted Accept-Language entry.
type AcceptLanguage struct {
	Tag    string
	Weight float64
}

// ParseAcceptLanguage parses the Accept-Language header value into a list
// of (tag, weight) pairs sorted descending by weight, ties broken by
// source order, per §3/§4.6. Tag validation and weight parsing are
// delegated to golang.org/x/text/language, which already implements RFC
// 4647/BCP 47 accept-language parsing; this wraps it to produce the
// spec's plain ordered-pairs shape instead of a language.Matcher.
func ParseAcceptLanguage(header string) []AcceptLanguage {
	if header == "" {
		return nil
	}

	tags, qs, err := language.ParseAcceptLanguage(header)
	if err != nil && len(tags) == 0 {
		return nil
	}

	out := make([]AcceptLanguage, len(tags))
	for i, t := range tags {
		w := 1.0
		if i < len(qs) {
			w = float64(qs[i])
		}
		// Break ties in source order via a tiny per-index nudge,
		// mirroring ParseAcceptEncoding's stability trick.
		out[i] = AcceptLanguage{Tag: t.String(), Weight: w - float64(i)*1e-6}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight > out[j].Weight
	})

	return out
}
