package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SessionState is everything the portal needs echoed back on the next
// request, besides cookies. It is a value: request functions take one and
// return its replacement, never mutating the one they were given.
type SessionState struct {
	PagePath           string // path (and non-token query) of the current page
	NavToken           string // per-transition navigation token
	ViewState          string
	ViewStateGenerator string
	EventValidation    string
}

// Valid reports whether the state can drive a postback.
func (s SessionState) Valid() bool {
	return s.PagePath != "" && s.ViewState != ""
}

// URL is the absolute address the next postback goes to.
func (s SessionState) URL(site Site) string {
	u := site.url(s.PagePath)
	if s.NavToken == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + site.TokenParam + "=" + url.QueryEscape(s.NavToken)
}

// Apply returns the state that follows an async postback reply. Hidden
// fields the reply did not touch keep their previous value.
func (s SessionState) Apply(d Delta, tokenParam string) SessionState {
	next := s
	if v, ok := d.Hidden["__VIEWSTATE"]; ok {
		next.ViewState = v
	}
	if v, ok := d.Hidden["__VIEWSTATEGENERATOR"]; ok {
		next.ViewStateGenerator = v
	}
	if v, ok := d.Hidden["__EVENTVALIDATION"]; ok {
		next.EventValidation = v
	}
	if d.Redirect != "" {
		path, token := splitPageURL(d.Redirect, tokenParam)
		next.PagePath = path
		next.NavToken = token
	}
	return next
}

// formFields returns the hidden fields every postback must carry.
func (s SessionState) formFields() url.Values {
	v := url.Values{}
	v.Set("__VIEWSTATE", s.ViewState)
	v.Set("__VIEWSTATEGENERATOR", s.ViewStateGenerator)
	v.Set("__EVENTVALIDATION", s.EventValidation)
	return v
}

// ParseSessionState harvests the hidden WebForms fields from a full page
// and the navigation token from the URL it was served at.
func ParseSessionState(body []byte, pageURL string, tokenParam string) (SessionState, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return SessionState{}, fmt.Errorf("parse page: %w", err)
	}
	return sessionFromDoc(doc, pageURL, tokenParam)
}

func sessionFromDoc(doc *goquery.Document, pageURL string, tokenParam string) (SessionState, error) {
	field := func(name string) string {
		v, _ := doc.Find(fmt.Sprintf("input[name='%s']", name)).First().Attr("value")
		return v
	}

	path, token := splitPageURL(pageURL, tokenParam)
	st := SessionState{
		PagePath:           path,
		NavToken:           token,
		ViewState:          field("__VIEWSTATE"),
		ViewStateGenerator: field("__VIEWSTATEGENERATOR"),
		EventValidation:    field("__EVENTVALIDATION"),
	}
	if st.ViewState == "" {
		return st, fmt.Errorf("no __VIEWSTATE on %s", path)
	}
	return st, nil
}

// splitPageURL separates the navigation token from the rest of a page URL.
// Absolute URLs are reduced to their path.
func splitPageURL(raw, tokenParam string) (path, token string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}
	q := u.Query()
	token = q.Get(tokenParam)
	q.Del(tokenParam)

	path = u.EscapedPath()
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path, token
}
