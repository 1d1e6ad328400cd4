package client

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// DebugCookies logs and returns the cookies held for the portal.
func (c *Client) DebugCookies() []*http.Cookie {
	u, err := url.Parse(c.site.BaseURL)
	if err != nil {
		return nil
	}
	cookies := c.http.Jar.Cookies(u)
	for _, cookie := range cookies {
		c.log.Debug("cookie",
			zap.String("name", cookie.Name),
			zap.Int("value_len", len(cookie.Value)))
	}
	return cookies
}
