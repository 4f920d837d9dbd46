package http1

import (
	"strconv"
	"strings"
	"time"
)

// Cookie mirrors the fields original_source's HttpCookie carries: a
// response-side Set-Cookie entry with an optional MaxAge, path, domain,
// and comment.
type Cookie struct {
	Name     string
	Value    string
	MaxAge   time.Duration // 0 means "session cookie", no Max-Age emitted
	Path     string
	Domain   string
	Comment  string
	HTTPOnly bool
	Secure   bool
}

// String renders the cookie as the value of a Set-Cookie header line
// (without the "Set-Cookie: " prefix, added by the response writer).
func (c Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(int(c.MaxAge.Seconds())))
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.Comment != "" {
		b.WriteString("; Comment=")
		b.WriteString(c.Comment)
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	return b.String()
}

// ParseCookies parses the value of a request Cookie header into a name to
// value map. Malformed pairs are skipped rather than failing the whole
// request; a missing cookie header parses to an empty map.
func ParseCookies(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}
