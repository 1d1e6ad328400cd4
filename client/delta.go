package client

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformedDelta is returned when an async postback response does not
// follow the len|type|id|content| framing.
var ErrMalformedDelta = errors.New("malformed postback delta")

// DeltaRecord is one len|type|id|content| entry of an async postback reply.
type DeltaRecord struct {
	Type    string
	ID      string
	Content string
}

// Delta is a parsed ASP.NET AJAX partial-page response.
type Delta struct {
	Records []DeltaRecord

	Panels   map[string]string // updatePanel id -> html
	Hidden   map[string]string // hiddenField name -> value
	Redirect string            // pageRedirect target, unescaped
	Error    string            // server-side error message, if any
	Status   string            // status code that came with the error record
}

// HTML returns every updated panel concatenated in arrival order.
func (d Delta) HTML() string {
	var b strings.Builder
	for _, r := range d.Records {
		if r.Type == "updatePanel" {
			b.WriteString(r.Content)
		}
	}
	return b.String()
}

// IsDelta reports whether body looks like a delta rather than a full page.
// The portal answers with a normal HTML page when the async request was not
// accepted (e.g. it bounced us to the login form).
func IsDelta(body string) bool {
	i := strings.IndexByte(body, '|')
	if i <= 0 {
		return false
	}
	_, err := strconv.Atoi(body[:i])
	return err == nil
}

// ParseDelta parses the body of an async postback response. Lengths in the
// framing count UTF-16 code units, as the server computes them on .NET
// strings, not bytes.
func ParseDelta(body string) (Delta, error) {
	d := Delta{
		Panels: make(map[string]string),
		Hidden: make(map[string]string),
	}

	pos := 0
	for pos < len(body) {
		lenField, next, err := readField(body, pos)
		if err != nil {
			return Delta{}, err
		}
		n, err := strconv.Atoi(lenField)
		if err != nil || n < 0 {
			return Delta{}, fmt.Errorf("%w: bad length %q at offset %d", ErrMalformedDelta, lenField, pos)
		}
		typ, next, err := readField(body, next)
		if err != nil {
			return Delta{}, err
		}
		id, next, err := readField(body, next)
		if err != nil {
			return Delta{}, err
		}
		content, next, err := takeUnits(body, next, n)
		if err != nil {
			return Delta{}, err
		}
		if next >= len(body) || body[next] != '|' {
			return Delta{}, fmt.Errorf("%w: record %s/%s not terminated", ErrMalformedDelta, typ, id)
		}
		pos = next + 1

		d.Records = append(d.Records, DeltaRecord{Type: typ, ID: id, Content: content})
		switch typ {
		case "updatePanel":
			d.Panels[id] = content
		case "hiddenField":
			d.Hidden[id] = content
		case "pageRedirect":
			d.Redirect = unescapeRedirect(content)
		case "error":
			d.Status = id
			d.Error = content
		}
	}
	return d, nil
}

func readField(body string, pos int) (string, int, error) {
	i := strings.IndexByte(body[pos:], '|')
	if i < 0 {
		return "", 0, fmt.Errorf("%w: truncated at offset %d", ErrMalformedDelta, pos)
	}
	return body[pos : pos+i], pos + i + 1, nil
}

// takeUnits returns the substring starting at pos spanning n UTF-16 units.
func takeUnits(body string, pos, n int) (string, int, error) {
	i := pos
	for units := 0; units < n; {
		if i >= len(body) {
			return "", 0, fmt.Errorf("%w: content shorter than declared length %d", ErrMalformedDelta, n)
		}
		r, size := utf8.DecodeRuneInString(body[i:])
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		i += size
	}
	return body[pos:i], i, nil
}

func unescapeRedirect(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
