package client

import (
	"fmt"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(typ, id, content string) string {
	return fmt.Sprintf("%d|%s|%s|%s|", len(utf16.Encode([]rune(content))), typ, id, content)
}

func TestParseDelta(t *testing.T) {
	body := frame("updatePanel", "ctl00_upAltaEventos", `<div class="panel-body">Entrenamiento en suspensión</div>`) +
		frame("hiddenField", "__VIEWSTATE", "vs|with|pipes") +
		frame("hiddenField", "__EVENTVALIDATION", "ev2") +
		frame("asyncPostBackControlIDs", "", "ctl00$x") +
		frame("pageTitle", "", "Deportes")

	d, err := ParseDelta(body)
	require.NoError(t, err)

	assert.Len(t, d.Records, 5)
	assert.Equal(t, `<div class="panel-body">Entrenamiento en suspensión</div>`, d.Panels["ctl00_upAltaEventos"])
	assert.Equal(t, "vs|with|pipes", d.Hidden["__VIEWSTATE"])
	assert.Equal(t, "ev2", d.Hidden["__EVENTVALIDATION"])
	assert.Empty(t, d.Redirect)
	assert.Empty(t, d.Error)
}

func TestParseDeltaCountsUTF16Units(t *testing.T) {
	content := "plazas 🏋 sábado"
	d, err := ParseDelta(frame("updatePanel", "p", content) + frame("hiddenField", "__VIEWSTATE", "x"))
	require.NoError(t, err)
	assert.Equal(t, content, d.Panels["p"])
	assert.Equal(t, "x", d.Hidden["__VIEWSTATE"])
}

func TestParseDeltaRedirectAndError(t *testing.T) {
	d, err := ParseDelta(frame("pageRedirect", "", "%2fDeportesWeb%2fModulos%2fCarrito%3fstoken%3dabc"))
	require.NoError(t, err)
	assert.Equal(t, "/DeportesWeb/Modulos/Carrito?stoken=abc", d.Redirect)

	d, err = ParseDelta(frame("error", "500", "La sesión ha caducado"))
	require.NoError(t, err)
	assert.Equal(t, "500", d.Status)
	assert.Equal(t, "La sesión ha caducado", d.Error)
}

func TestParseDeltaMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"bad length":     "x|updatePanel|p|abc|",
		"truncated":      "10|updatePanel|p|abc",
		"no terminator":  "3|updatePanel|p|abcd",
		"missing fields": "3|updatePanel",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDelta(body)
			assert.ErrorIs(t, err, ErrMalformedDelta)
		})
	}
}

func TestDeltaHTMLKeepsOrder(t *testing.T) {
	d, err := ParseDelta(frame("updatePanel", "a", "<p>1</p>") + frame("hiddenField", "h", "v") + frame("updatePanel", "b", "<p>2</p>"))
	require.NoError(t, err)
	assert.Equal(t, "<p>1</p><p>2</p>", d.HTML())
}

func TestIsDelta(t *testing.T) {
	assert.True(t, IsDelta(frame("updatePanel", "a", "x")))
	assert.False(t, IsDelta("<!DOCTYPE html><html>"))
	assert.False(t, IsDelta(""))
	assert.False(t, IsDelta("|updatePanel|"))
}
