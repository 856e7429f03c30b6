package evmvc

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Handler serves one matched request. next carries the handler chain's
// continuation per §4.4; a Handler that wants to short-circuit the
// remaining chain calls next with a non-nil error, or ends the response
// itself.
type Handler func(req *Request, res *Response, next func(error))

// Route is a compiled (method, pattern) binding: its PCRE-equivalent
// regexp (compiled once at registration, per §3's invariant), its ordered
// parameter names, its handler chain, and its policy chain.
//
// Grounded on the teacher's router.go route/node registration shape
// (panic-on-conflict at Add time), generalized to the spec's named-PCRE
// grammar (§4.3) instead of air's radix-tree segments; Go's regexp package
// (RE2) stands in for PCRE per Design Note §9 — it supports named capture
// groups and case-insensitive UTF-8 matching, which is all the pattern
// grammar needs; it does not support backreferences/lookaround, which the
// grammar never uses either.
type Route struct {
	Method  string
	Pattern string

	re         *regexp.Regexp
	paramNames []string

	Handlers []Handler
	Policy   *FilterPolicy

	caseSensitive bool
}

// compileRoute compiles pattern (relative to its owning Router) into a
// Route for method. See §4.3 for the grammar.
func compileRoute(method, pattern string, caseSensitive bool, handlers []Handler, policy *FilterPolicy) (*Route, error) {
	re, names, err := compilePattern(pattern, caseSensitive)
	if err != nil {
		return nil, fmt.Errorf("evmvc: compiling route pattern %q: %w", pattern, err)
	}

	return &Route{
		Method:        method,
		Pattern:       pattern,
		re:            re,
		paramNames:    names,
		Handlers:      handlers,
		Policy:        policy,
		caseSensitive: caseSensitive,
	}, nil
}

// match attempts to match urlPath (already stripped of ancestor router
// prefixes) against the route, returning the extracted, URI-decoded route
// parameters on success.
func (rt *Route) match(urlPath string) (map[string]string, bool) {
	m := rt.re.FindStringSubmatchIndex(urlPath)
	if m == nil {
		return nil, false
	}

	names := rt.re.SubexpNames()
	params := make(map[string]string, len(rt.paramNames))
	for i, name := range names {
		if name == "" {
			continue
		}

		start, end := m[2*i], m[2*i+1]
		if start < 0 {
			// Unmatched optional group (§4.3 ":[name]").
			continue
		}

		decoded, err := url.PathUnescape(urlPath[start:end])
		if err != nil {
			decoded = urlPath[start:end]
		}
		params[name] = decoded
	}

	return params, true
}

// segKind is the grammar kind of one "/"-delimited pattern segment (§4.3).
type segKind uint8

const (
	segLiteral segKind = iota
	segAny              // "*" — one segment
	segAnyGreedy        // "**" — remainder, greedy
	segParam            // ":name" or ":name(regex)"
	segOptionalParam    // ":[name]" or ":[name(regex)]"
)

type segment struct {
	kind    segKind
	literal string
	name    string
	body    string // regex body for segParam/segOptionalParam
}

const defaultParamBody = `[^/\n]+`

// collapseSlashes collapses runs of consecutive "/" into one, per §4.3:
// "Double slashes inside a registered path are collapsed."
func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}

// parsePatternSegment classifies one path segment per the grammar in
// §4.3.
func parsePatternSegment(seg string) (segment, error) {
	switch seg {
	case "*":
		return segment{kind: segAny}, nil
	case "**":
		return segment{kind: segAnyGreedy}, nil
	}

	if !strings.HasPrefix(seg, ":") {
		return segment{kind: segLiteral, literal: seg}, nil
	}

	body := seg[1:]
	optional := strings.HasPrefix(body, "[")
	if optional {
		if !strings.HasSuffix(body, "]") {
			return segment{}, fmt.Errorf("unterminated optional param %q", seg)
		}
		body = body[1 : len(body)-1]
	}

	name := body
	regexBody := defaultParamBody
	if i := strings.IndexByte(body, '('); i >= 0 {
		if !strings.HasSuffix(body, ")") {
			return segment{}, fmt.Errorf("unterminated param regex %q", seg)
		}
		name = body[:i]
		regexBody = body[i+1 : len(body)-1]
	}

	if name == "" {
		return segment{}, fmt.Errorf("empty param name in %q", seg)
	}

	kind := segParam
	if optional {
		kind = segOptionalParam
	}

	return segment{kind: kind, name: name, body: regexBody}, nil
}

// compilePattern implements §4.3's pattern-compilation algorithm: each
// required segment contributes "\/<body>"; each optional segment
// contributes a "(?:...)?" wrapper around itself and everything after it,
// so optional segments must form a contiguous tail (validated here); the
// whole thing is anchored with "^…($|/$)" and compiled case-insensitively
// unless caseSensitive is set.
func compilePattern(pattern string, caseSensitive bool) (*regexp.Regexp, []string, error) {
	pattern = collapseSlashes(strings.TrimSuffix(pattern, "/"))
	var segs []segment

	if pattern != "" {
		for _, raw := range strings.Split(strings.TrimPrefix(pattern, "/"), "/") {
			s, err := parsePatternSegment(raw)
			if err != nil {
				return nil, nil, err
			}
			segs = append(segs, s)
		}
	}

	// Validate: once an optional segment appears, every following
	// segment must also be optional (§4.3: "optionals must be a
	// contiguous tail").
	seenOptional := false
	for _, s := range segs {
		if s.kind == segOptionalParam {
			seenOptional = true
		} else if seenOptional {
			return nil, nil, fmt.Errorf("optional params must be a contiguous tail")
		}
	}

	var names []string
	body := ""
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]

		var piece string
		switch s.kind {
		case segLiteral:
			piece = "/" + regexp.QuoteMeta(s.literal)
		case segAny:
			piece = "/" + defaultParamBody
		case segAnyGreedy:
			piece = "/.*"
		case segParam:
			names = append([]string{s.name}, names...)
			piece = "/(?P<" + s.name + ">" + s.body + ")"
		case segOptionalParam:
			names = append([]string{s.name}, names...)
			piece = "/(?P<" + s.name + ">" + s.body + ")"
		}

		if s.kind == segOptionalParam {
			body = "(?:" + piece + body + ")?"
		} else {
			body = piece + body
		}
	}

	full := "^" + body + "($|/$)"
	if !caseSensitive {
		full = "(?i)" + full
	}

	re, err := regexp.Compile(full)
	if err != nil {
		return nil, nil, err
	}

	return re, names, nil
}
