package report

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Language selects the catalog used for PDF labels, decision reasons and
// selection explanations.
type Language string

const (
	LangEnglish Language = "en"
	LangTurkish Language = "tr"
)

var ErrUnsupportedLanguage = errors.New("report: unsupported language")

//go:embed en.json tr.json
var catalogFS embed.FS

// catalogs maps each language to its key/label table. English is complete;
// other catalogs may omit keys and fall back to it.
var catalogs = func() map[Language]map[string]string {
	out := make(map[Language]map[string]string, 2)
	for _, lang := range []Language{LangEnglish, LangTurkish} {
		data, err := catalogFS.ReadFile(string(lang) + ".json")
		if err != nil {
			panic(fmt.Sprintf("report: catalog %s: %v", lang, err))
		}
		table := map[string]string{}
		if err := json.Unmarshal(data, &table); err != nil {
			panic(fmt.Sprintf("report: catalog %s: %v", lang, err))
		}
		out[lang] = table
	}
	return out
}()

// Translator looks up report labels in one catalog.
type Translator struct {
	lang Language
}

// NewTranslator falls back to English for languages without a catalog.
func NewTranslator(lang Language) Translator {
	if _, ok := catalogs[lang]; !ok {
		lang = LangEnglish
	}
	return Translator{lang: lang}
}

func (t Translator) Lang() Language { return t.lang }

// T resolves key, then its English label, then the key itself so a missing
// label shows up verbatim in the PDF instead of as a blank cell.
func (t Translator) T(key string) string {
	if label, ok := catalogs[t.lang][key]; ok {
		return label
	}
	if label, ok := catalogs[LangEnglish][key]; ok {
		return label
	}
	return key
}

func (t Translator) Format(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}

// ParseLanguage maps a --lang flag or config value onto a catalog.
func ParseLanguage(lang string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "en", "en-us", "en-gb", "english":
		return LangEnglish, nil
	case "tr", "tr-tr", "turkish", "türkçe", "turkce":
		return LangTurkish, nil
	}
	return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
}
