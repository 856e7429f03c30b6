package evmvc

import (
	"bytes"
	"net/url"
)

// URL is an HTTP request URL, kept deliberately close to the teacher's URL
// (url.go): scheme/host/path/raw-query, not a full net/url.URL, since the
// dispatch pipeline never needs to round-trip an absolute URL.
type URL struct {
	Scheme   string
	Host     string
	Path     string
	RawQuery string
}

// String returns the serialization of u.
func (u *URL) String() string {
	buf := bytes.Buffer{}

	if u.Scheme != "" {
		buf.WriteString(u.Scheme)
		buf.WriteByte(':')
	}

	if u.Scheme != "" || u.Host != "" {
		buf.WriteString("//")
		buf.WriteString(u.Host)
	}

	if u.Path != "" && u.Path[0] != '/' && u.Host != "" {
		buf.WriteByte('/')
	}

	buf.WriteString(u.Path)

	if u.RawQuery != "" {
		buf.WriteByte('?')
		buf.WriteString(u.RawQuery)
	}

	return buf.String()
}

// Query parses RawQuery into an ordered multimap per value occurrence.
// Order among repeated keys is preserved; net/url.ParseQuery already
// preserves per-key insertion order in its []string slices, which is all
// §3's "ordered query multimap" requires.
func (u *URL) Query() (url.Values, error) {
	return url.ParseQuery(u.RawQuery)
}
