package server

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/cosflow/cosflow-web/i18n"
)

// LocaleHandler stores the chosen locale in NEXT_LOCALE (POST /api/locale).
// JSON callers get JSON back; the site's language form is redirected to where it came from.
func (s *Server) LocaleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Locale string `json:"locale"`
		}
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		isJSON := mediaType == "application/json"
		if isJSON {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
				writeJSONError(w, http.StatusBadRequest, msgInvalidRequestBody)
				return
			}
		} else {
			body.Locale = r.FormValue("locale")
		}

		if !i18n.IsSupported(body.Locale) {
			writeJSONError(w, http.StatusBadRequest, msgUnsupportedLocale)
			return
		}
		s.cookies.SetLocale(w, body.Locale)

		if !isJSON {
			redirectSuccess(w, r, localPath(r.FormValue("next"), "/"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"locale": body.Locale})
	}
}
