// Package i18n resolves the visitor's locale and translates page strings.
//
// Locale resolution order:
//  1. the NEXT_LOCALE cookie, when it names a supported locale
//  2. the Accept-Language header
//  3. DefaultLocale
//
// Upstream error messages are never translated here.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sync"

	"golang.org/x/text/language"
)

const DefaultLocale = "en"

// SupportedLocales lists the locales with a translation file; the first is the fallback.
var SupportedLocales = []string{"en", "fr"}

//go:embed locales/*.json
var localeFiles embed.FS

var (
	translations map[string]map[string]string
	loadOnce     sync.Once
	loadErr      error

	matcher = language.NewMatcher([]language.Tag{language.English, language.French})
)

// Load parses the embedded translation files. It is safe to call more than once.
func Load() error {
	loadOnce.Do(func() {
		translations = make(map[string]map[string]string, len(SupportedLocales))
		for _, locale := range SupportedLocales {
			data, err := fs.ReadFile(localeFiles, "locales/"+locale+".json")
			if err != nil {
				loadErr = fmt.Errorf("[i18n Load] reading %s: %w", locale, err)
				return
			}
			var nested map[string]any
			if err := json.Unmarshal(data, &nested); err != nil {
				loadErr = fmt.Errorf("[i18n Load] parsing %s: %w", locale, err)
				return
			}
			flat := make(map[string]string)
			flatten("", nested, flat)
			translations[locale] = flat
		}
	})
	return loadErr
}

// flatten turns {"nav": {"login": "..."}} into "nav.login".
func flatten(prefix string, nested map[string]any, out map[string]string) {
	for k, v := range nested {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			flatten(key, val, out)
		}
	}
}

func IsSupported(locale string) bool {
	for _, l := range SupportedLocales {
		if l == locale {
			return true
		}
	}
	return false
}

// Negotiate picks the locale for a request from the cookie value and Accept-Language header.
func Negotiate(cookieLocale, acceptLanguage string) string {
	if IsSupported(cookieLocale) {
		return cookieLocale
	}
	if acceptLanguage == "" {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLocale
	}
	return SupportedLocales[index]
}

// T translates key for locale, falling back to the default locale and then to the key itself.
func T(locale, key string) string {
	if err := Load(); err != nil {
		return key
	}
	if msg, ok := translations[locale][key]; ok {
		return msg
	}
	if msg, ok := translations[DefaultLocale][key]; ok {
		return msg
	}
	return key
}
