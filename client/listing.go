package client

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	sessionCodeRe = regexp.MustCompile(`AltaEvento\('([^']+)'\)`)
	seatsRe       = regexp.MustCompile(`-?\d+`)
	timeRe        = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// Slot is one bookable session in a day's listing.
type Slot struct {
	Name  string
	Time  string // HH:MM
	Seats int    // -1 when the counter could not be read
	Code  string // session code the reservation postback needs
}

// Listing is the content of the activities panel for one day.
type Listing struct {
	Slots []Slot
	Alert string
}

// Find returns the slot for a class name and HH:MM start time. Names are
// compared ignoring case and surrounding or repeated whitespace. A match with
// seats left wins over a sold-out one.
func (l Listing) Find(name, hhmm string) (Slot, bool) {
	want := normalizeName(name)
	var first Slot
	found := false
	for _, s := range l.Slots {
		if s.Time != hhmm || normalizeName(s.Name) != want {
			continue
		}
		if s.Seats != 0 {
			return s, true
		}
		if !found {
			first, found = s, true
		}
	}
	return first, found
}

// ParseListing reads the class panels: each div.panel-body carries the class
// name in its first h4.media-heading and one li.media per session, with the
// start time in the item's heading and the remaining seats in a span.
func ParseListing(html string, site Site) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Listing{}, fmt.Errorf("parse listing: %w", err)
	}

	var l Listing
	doc.Find("div.panel-body").Each(func(_ int, panel *goquery.Selection) {
		name := strings.TrimSpace(panel.Find("h4.media-heading").First().Text())
		if name == "" {
			return
		}
		panel.Find("li.media").Each(func(_ int, li *goquery.Selection) {
			tm := parseTime(li.Find("h4.media-heading").First().Text())
			if tm == "" {
				return
			}
			l.Slots = append(l.Slots, Slot{
				Name:  name,
				Time:  tm,
				Seats: parseSeats(li.Find("span").First().Text()),
				Code:  sessionCode(li),
			})
		})
	})
	l.Alert = alertText(doc, site)
	return l, nil
}

// ParseAlert returns the danger alert text of a reply fragment, if shown.
func ParseAlert(html string, site Site) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return alertText(doc, site)
}

func alertText(doc *goquery.Document, site Site) string {
	div := doc.Find("#" + site.AlertDangerDiv)
	span := doc.Find("#" + site.AlertDangerSpan)
	if div.Length() == 0 {
		// The cart control renders its own alert with the same suffix.
		div = doc.Find("div[id$='_divAlertDanger']").First()
		span = div.Find("span[id$='_spnAlertDanger']")
	}
	if div.Length() == 0 || hidden(div) {
		return ""
	}
	text := span.Text()
	if strings.TrimSpace(text) == "" {
		text = div.Text()
	}
	return strings.Join(strings.Fields(text), " ")
}

func hidden(s *goquery.Selection) bool {
	if s.HasClass("hidden") {
		return true
	}
	style, _ := s.Attr("style")
	return strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none")
}

func sessionCode(li *goquery.Selection) string {
	if code, ok := li.Find("[data-codigo]").First().Attr("data-codigo"); ok && code != "" {
		return code
	}
	if code, ok := li.Attr("data-codigo"); ok && code != "" {
		return code
	}
	var code string
	li.Find("[onclick], [href]").AddSelection(li).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"onclick", "href"} {
			v, _ := s.Attr(attr)
			if m := sessionCodeRe.FindStringSubmatch(v); m != nil {
				code = m[1]
				return false
			}
		}
		return true
	})
	return code
}

func parseTime(s string) string {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	h, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", h, m[2])
}

func parseSeats(s string) int {
	m := seatsRe.FindString(s)
	if m == "" {
		return -1
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return -1
	}
	return n
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
