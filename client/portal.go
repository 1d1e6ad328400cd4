package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Credentials for the portal login form.
type Credentials struct {
	Email    string
	Password string
}

// Profile is what the confirmation form asks for.
type Profile struct {
	Name    string
	Surname string
	Email   string
}

// Reply is what a reservation or confirmation postback told us.
type Reply struct {
	Alert     string // danger alert text, empty when none was shown
	CartReady bool   // the cart confirmation button is on screen
	Confirmed bool   // confirmation went through without an alert
	DryRun    bool   // confirmation was skipped on purpose
}

type page struct {
	state SessionState
	url   string
	body  []byte
}

// postbackArgument is the JSON the portal's client script puts in
// __EVENTARGUMENT.
type postbackArgument struct {
	Action string            `json:"accion"`
	Data   map[string]string `json:"datos,omitempty"`
}

type action struct {
	Target string
	Name   string
	Data   map[string]string
	Fields url.Values
}

// Open logs in and walks to the activities page of the configured center.
func (c *Client) Open(ctx context.Context, creds Credentials) (SessionState, error) {
	st, err := c.Login(ctx, creds)
	if err != nil {
		return SessionState{}, err
	}
	return c.OpenActivities(ctx, st)
}

// Login submits the login form and returns the state of the page it lands on.
func (c *Client) Login(ctx context.Context, creds Credentials) (SessionState, error) {
	login, err := c.load(ctx, c.site.url(c.site.LoginPath), "")
	if err != nil {
		return SessionState{}, fmt.Errorf("load login page: %w", err)
	}

	form := login.state.formFields()
	form.Set("__EVENTTARGET", "")
	form.Set("__EVENTARGUMENT", "")
	form.Set(c.site.UserField, creds.Email)
	form.Set(c.site.PasswordField, creds.Password)
	form.Set(c.site.LoginButton, "Entrar")

	res, err := c.postForm(ctx, login.state.URL(c.site), form, nil)
	if err != nil {
		return SessionState{}, fmt.Errorf("submit login: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return SessionState{}, fmt.Errorf("parse login reply: %w", err)
	}
	if doc.Find("#"+c.site.ProfileMarker).Length() == 0 {
		reason := alertText(doc, c.site)
		if reason == "" {
			reason = "profile menu not shown"
		}
		return SessionState{}, fmt.Errorf("%w: %s", ErrLoginFailed, reason)
	}

	st, err := sessionFromDoc(doc, res.FinalURL, c.site.TokenParam)
	if err != nil {
		return SessionState{}, err
	}
	c.log.Info("logged in", zap.String("page", st.PagePath))
	return st, nil
}

// OpenActivities navigates home -> center -> daily activity offer.
func (c *Client) OpenActivities(ctx context.Context, st SessionState) (SessionState, error) {
	home, err := c.load(ctx, c.site.url(c.site.HomePath), st.URL(c.site))
	if err != nil {
		return SessionState{}, fmt.Errorf("load home: %w", err)
	}
	center, err := c.follow(ctx, home, c.site.CenterTitle)
	if err != nil {
		return SessionState{}, err
	}
	activities, err := c.follow(ctx, center, c.site.ActivitiesTitle)
	if err != nil {
		return SessionState{}, err
	}
	c.log.Info("activities page open",
		zap.String("center", c.site.CenterTitle),
		zap.String("page", activities.state.PagePath))
	return activities.state, nil
}

// Listing selects a day in the calendar and returns its sessions.
func (c *Client) Listing(ctx context.Context, st SessionState, day time.Time) (Listing, SessionState, error) {
	html, next, err := c.postback(ctx, st, action{
		Target: c.site.CalendarTarget,
		Name:   "SeleccionarFecha",
		Data:   map[string]string{"fecha": day.Format("02/01/2006")},
	})
	if err != nil {
		return Listing{}, next, err
	}
	l, err := ParseListing(html, c.site)
	if err != nil {
		return Listing{}, next, err
	}
	return l, next, nil
}

// Reserve adds a session to the cart.
func (c *Client) Reserve(ctx context.Context, st SessionState, slot Slot) (Reply, SessionState, error) {
	if slot.Code == "" {
		return Reply{}, st, fmt.Errorf("slot %s %s carries no session code", slot.Name, slot.Time)
	}
	html, next, err := c.postback(ctx, st, action{
		Target: c.site.ReserveTarget,
		Name:   "AltaEvento",
		Data: map[string]string{
			"codigoSesion":  slot.Code,
			"codigoCliente": c.accountCode,
		},
	})
	if err != nil {
		return Reply{}, next, err
	}
	return Reply{
		Alert:     ParseAlert(html, c.site),
		CartReady: strings.Contains(html, c.site.CartButton),
	}, next, nil
}

// Confirm submits the cart with the contact details. In dry-run mode it
// only logs what would have been sent.
func (c *Client) Confirm(ctx context.Context, st SessionState, p Profile) (Reply, SessionState, error) {
	if c.dryRun {
		c.log.Info("dry run, confirmation not sent",
			zap.String("name", p.Name),
			zap.String("surname", p.Surname),
			zap.String("email", p.Email))
		return Reply{Confirmed: true, DryRun: true}, st, nil
	}

	html, next, err := c.postback(ctx, st, action{
		Target: c.site.ConfirmTarget,
		Name:   "ConfirmarCarrito",
		Fields: url.Values{
			c.site.NameField:    {p.Name},
			c.site.SurnameField: {p.Surname},
			c.site.EmailField:   {p.Email},
		},
	})
	if err != nil {
		return Reply{}, next, err
	}
	alert := ParseAlert(html, c.site)
	return Reply{Alert: alert, Confirmed: alert == ""}, next, nil
}

func (c *Client) load(ctx context.Context, rawURL, referer string) (page, error) {
	res, err := c.get(ctx, rawURL, referer)
	if err != nil {
		return page{}, err
	}
	if c.isLoginURL(res.FinalURL) && !c.isLoginURL(rawURL) {
		return page{}, fmt.Errorf("%w: %s bounced to login", ErrSessionExpired, rawURL)
	}
	st, err := ParseSessionState(res.Body, res.FinalURL, c.site.TokenParam)
	if err != nil {
		return page{}, err
	}
	return page{state: st, url: res.FinalURL, body: res.Body}, nil
}

// follow clicks the navigation tile whose heading carries title.
func (c *Client) follow(ctx context.Context, from page, title string) (page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(from.body)))
	if err != nil {
		return page{}, err
	}
	h := doc.Find("h4[title='" + title + "']").First()
	if h.Length() == 0 {
		return page{}, fmt.Errorf("no %q entry on %s", title, from.state.PagePath)
	}
	href, ok := h.Closest("a").Attr("href")
	if !ok {
		href, ok = h.Closest("article").Find("a[href]").First().Attr("href")
	}
	if !ok || href == "" {
		return page{}, fmt.Errorf("%q entry on %s has no link", title, from.state.PagePath)
	}

	base, err := url.Parse(from.url)
	if err != nil {
		return page{}, err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return page{}, fmt.Errorf("bad link %q: %w", href, err)
	}
	return c.load(ctx, base.ResolveReference(ref).String(), from.url)
}

// postback sends an async postback and returns the updated HTML: the panels
// of the delta, or the whole page when the delta redirected.
func (c *Client) postback(ctx context.Context, st SessionState, a action) (string, SessionState, error) {
	if !st.Valid() {
		return "", st, fmt.Errorf("%w: no view state to post back", ErrSessionExpired)
	}

	arg, err := json.Marshal(postbackArgument{Action: a.Name, Data: a.Data})
	if err != nil {
		return "", st, err
	}
	form := st.formFields()
	form.Set(c.site.ScriptManager, c.site.UpdatePanel+"|"+a.Target)
	form.Set("__EVENTTARGET", a.Target)
	form.Set("__EVENTARGUMENT", string(arg))
	form.Set("__LASTFOCUS", "")
	form.Set("__ASYNCPOST", "true")
	for k, vs := range a.Fields {
		form[k] = vs
	}

	pageURL := st.URL(c.site)
	res, err := c.postForm(ctx, pageURL, form, map[string]string{
		"Accept":           "*/*",
		"Cache-Control":    "no-cache",
		"X-MicrosoftAjax":  "Delta=true",
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return "", st, fmt.Errorf("postback %s: %w", a.Name, err)
	}
	if c.isLoginURL(res.FinalURL) {
		return "", st, fmt.Errorf("%w: postback %s bounced to login", ErrSessionExpired, a.Name)
	}

	body := string(res.Body)
	if !IsDelta(body) {
		return "", st, fmt.Errorf("postback %s: reply is not a delta", a.Name)
	}
	d, err := ParseDelta(body)
	if err != nil {
		return "", st, fmt.Errorf("postback %s: %w", a.Name, err)
	}
	if d.Error != "" {
		if staleSessionError(d.Error) {
			return "", st, fmt.Errorf("%w: %s", ErrSessionExpired, d.Error)
		}
		return "", st, fmt.Errorf("postback %s: server error %s: %s", a.Name, d.Status, d.Error)
	}

	next := st.Apply(d, c.site.TokenParam)
	if d.Redirect == "" {
		return d.HTML(), next, nil
	}
	if c.isLoginURL(d.Redirect) {
		return "", st, fmt.Errorf("%w: redirected to login", ErrSessionExpired)
	}
	p, err := c.load(ctx, next.URL(c.site), pageURL)
	if err != nil {
		return "", next, fmt.Errorf("follow redirect of %s: %w", a.Name, err)
	}
	return string(p.body), p.state, nil
}

func (c *Client) isLoginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSuffix(u.Path, "/"), strings.TrimSuffix(c.site.LoginPath, "/"))
}

func staleSessionError(msg string) bool {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "viewstate"):
		return true
	case strings.Contains(m, "sesi") && (strings.Contains(m, "caduc") || strings.Contains(m, "expir")):
		return true
	case strings.Contains(m, "session") && strings.Contains(m, "expired"):
		return true
	}
	return false
}
