package client

// Site describes the parts of the DeportesWeb portal the client talks to.
// Field names and element ids come from the live WebForms pages; they change
// rarely but they do change, so they live here instead of inline.
type Site struct {
	BaseURL   string // e.g. "https://deportesweb.madrid.es"
	LoginPath string // e.g. "/DeportesWeb/login"
	HomePath  string // e.g. "/DeportesWeb/Home"

	// Query parameter carrying the per-transition navigation token.
	TokenParam string

	// Navigation titles (h4[title]) of the home and center widgets.
	CenterTitle     string
	ActivitiesTitle string

	// Login form.
	UserField     string
	PasswordField string
	LoginButton   string
	ProfileMarker string // element id present only once logged in

	// Async postback plumbing.
	ScriptManager  string
	UpdatePanel    string
	CalendarTarget string
	ReserveTarget  string
	ConfirmTarget  string

	// Confirmation form fields.
	NameField    string
	SurnameField string
	EmailField   string

	// Alert shown by the reservation and cart controls.
	AlertDangerDiv  string
	AlertDangerSpan string
	CartButton      string
}

// DefaultSite returns the layout of deportesweb.madrid.es.
func DefaultSite() Site {
	return Site{
		BaseURL:    "https://deportesweb.madrid.es",
		LoginPath:  "/DeportesWeb/login",
		HomePath:   "/DeportesWeb/Home",
		TokenParam: "stoken",

		CenterTitle:     "La Fundi",
		ActivitiesTitle: "Oferta de actividades por día y centro",

		UserField:     "ctl00$ContentFixedSection$uLogin$txtIdentificador",
		PasswordField: "ctl00$ContentFixedSection$uLogin$txtContrasena",
		LoginButton:   "ctl00$ContentFixedSection$uLogin$btnLogin",
		ProfileMarker: "ctl00_divProfile",

		ScriptManager:  "ctl00$ScriptManager1",
		UpdatePanel:    "ctl00$ContentFixedSection$uAltaEventos$upAltaEventos",
		CalendarTarget: "ctl00$ContentFixedSection$uAltaEventos$uAltaEventosFechas$calendario",
		ReserveTarget:  "ctl00$ContentFixedSection$uAltaEventos$uAltaEventosFechas$lstEventos",
		ConfirmTarget:  "ctl00$ContentFixedSection$uCarritoConfirmar$btnConfirmCart",

		NameField:    "ctl00$ContentFixedSection$uCarritoConfirmar$txtNombre",
		SurnameField: "ctl00$ContentFixedSection$uCarritoConfirmar$txtApellidos",
		EmailField:   "ctl00$ContentFixedSection$uCarritoConfirmar$txtEmail",

		AlertDangerDiv:  "ContentFixedSection_uAltaEventos_uAltaEventosFechas_uAlert_divAlertDanger",
		AlertDangerSpan: "ContentFixedSection_uAltaEventos_uAltaEventosFechas_uAlert_spnAlertDanger",
		CartButton:      "ContentFixedSection_uCarritoConfirmar_btnConfirmCart",
	}
}

func (s Site) url(path string) string {
	return s.BaseURL + path
}
