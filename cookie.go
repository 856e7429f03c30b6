package evmvc

import (
	"bytes"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SameSite is the SameSite attribute of a Cookie.
type SameSite uint8

// SameSite values.
const (
	SameSiteDefault SameSite = iota
	SameSiteNone
	SameSiteLax
	SameSiteStrict
)

// Cookie is an HTTP cookie. Kept close to the teacher's Cookie (cookie.go)
// — same String() serializer and validation helpers — with SameSite added
// per original_source/include/evmvc/headers.h and §4.5's attribute list.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
}

// String returns the Set-Cookie serialization of c, or "" if c.Name is
// invalid.
func (c *Cookie) String() string {
	if !validCookieName(c.Name) {
		return ""
	}

	buf := bytes.Buffer{}

	n := strings.NewReplacer("\r", "-", "\n", "-").Replace(c.Name)
	v := sanitize(c.Value, validCookieValueByte)
	if strings.IndexByte(v, ' ') >= 0 || strings.IndexByte(v, ',') >= 0 {
		v = `"` + v + `"`
	}

	buf.WriteString(n)
	buf.WriteByte('=')
	buf.WriteString(v)

	if len(c.Path) > 0 {
		buf.WriteString("; Path=")
		buf.WriteString(sanitize(c.Path, func(b byte) bool {
			return 0x20 <= b && b < 0x7f && b != ';'
		}))
	}

	if validCookieDomain(c.Domain) {
		d := c.Domain
		if d[0] == '.' {
			d = d[1:]
		}
		buf.WriteString("; Domain=")
		buf.WriteString(d)
	}

	if c.Expires.Year() >= 1601 {
		buf.WriteString("; Expires=")
		buf.WriteString(c.Expires.UTC().Format(http.TimeFormat))
	}

	if c.MaxAge > 0 {
		buf.WriteString("; Max-Age=")
		buf.WriteString(strconv.Itoa(c.MaxAge))
	} else if c.MaxAge < 0 {
		buf.WriteString("; Max-Age=0")
	}

	if c.HTTPOnly {
		buf.WriteString("; HttpOnly")
	}

	if c.Secure {
		buf.WriteString("; Secure")
	}

	switch c.SameSite {
	case SameSiteNone:
		buf.WriteString("; SameSite=None")
	case SameSiteLax:
		buf.WriteString("; SameSite=Lax")
	case SameSiteStrict:
		buf.WriteString("; SameSite=Strict")
	}

	return buf.String()
}

// CookieJar is a read/write view over the cookies of a request/response
// exchange, per §3's "cookie jar view".
type CookieJar struct {
	byName map[string]*Cookie
	order  []string
}

// newCookieJar returns an empty CookieJar.
func newCookieJar() *CookieJar {
	return &CookieJar{byName: map[string]*Cookie{}}
}

// Get returns the cookie named name, or nil.
func (j *CookieJar) Get(name string) *Cookie {
	return j.byName[name]
}

// Set adds or replaces c in the jar, keyed by c.Name.
func (j *CookieJar) Set(c *Cookie) {
	if _, ok := j.byName[c.Name]; !ok {
		j.order = append(j.order, c.Name)
	}
	j.byName[c.Name] = c
}

// All returns every cookie in insertion order.
func (j *CookieJar) All() []*Cookie {
	out := make([]*Cookie, 0, len(j.order))
	for _, n := range j.order {
		out = append(out, j.byName[n])
	}
	return out
}

// parseCookieHeader parses a Cookie request header value ("a=1; b=2") into
// a CookieJar.
func parseCookieHeader(header string) *CookieJar {
	jar := newCookieJar()
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, found := cutByte(part, '=')
		if !found {
			continue
		}

		name = strings.TrimSpace(name)
		value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"`))
		if !validCookieName(name) {
			continue
		}

		jar.Set(&Cookie{Name: name, Value: value})
	}
	return jar
}

func validCookieName(n string) bool {
	return n != "" && strings.IndexFunc(n, func(r rune) bool {
		return !strings.ContainsRune(
			"!#$%&'*+-."+
				"0123456789"+
				"ABCDEFGHIJKLMNOPQRSTUWVXYZ"+
				"^_`"+
				"abcdefghijklmnopqrstuvwxyz"+
				"|~",
			r,
		)
	}) < 0
}

func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

func validCookieDomain(d string) bool {
	if l := len(d); l == 0 || l > 255 {
		return false
	}

	if net.ParseIP(d) != nil && !strings.Contains(d, ":") {
		return true
	}

	if d[0] == '.' {
		d = d[1:]
	}

	ok := false
	last := byte('.')
	partlen := 0
	for i := 0; i < len(d); i++ {
		c := d[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			ok = true
			partlen++
		case '0' <= c && c <= '9':
			partlen++
		case c == '-':
			if last == '.' {
				return false
			}
			partlen++
		case c == '.':
			if last == '.' || last == '-' {
				return false
			}
			if partlen > 63 || partlen == 0 {
				return false
			}
			partlen = 0
		default:
			return false
		}
		last = c
	}

	if last == '-' || partlen > 63 {
		return false
	}

	return ok
}

func sanitize(s string, valid func(byte) bool) string {
	ok := true
	for i := 0; i < len(s); i++ {
		if !valid(s[i]) {
			ok = false
			break
		}
	}

	if ok {
		return s
	}

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if b := s[i]; valid(b) {
			buf = append(buf, b)
		}
	}

	return string(buf)
}
