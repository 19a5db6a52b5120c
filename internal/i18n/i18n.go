package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator resolves kiosk prompt strings for a fixed language.
type Translator struct {
	localizer *goi18n.Localizer
	lang      string
}

// NewTranslator loads the embedded locale files and returns a translator
// for the requested language, falling back to English for unknown codes.
func NewTranslator(lang string) (*Translator, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded locales: %w", err)
	}
	for _, entry := range entries {
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+entry.Name()); err != nil {
			return nil, fmt.Errorf("failed to load locale %s: %w", entry.Name(), err)
		}
	}

	if lang == "" {
		lang = "en"
	}
	if _, err := language.Parse(lang); err != nil {
		log.Warnf("Unknown language %q, falling back to en", lang)
		lang = "en"
	}

	return &Translator{
		localizer: goi18n.NewLocalizer(bundle, lang, "en"),
		lang:      lang,
	}, nil
}

// Language returns the active language code.
func (t *Translator) Language() string {
	return t.lang
}

// T resolves a message by ID. Unknown IDs come back as the ID itself so a
// missing translation never blanks a prompt.
func (t *Translator) T(id string) string {
	msg, err := t.localizer.Localize(&goi18n.LocalizeConfig{MessageID: id})
	if err != nil {
		log.Debugf("Missing translation for %q: %v", id, err)
		return id
	}
	return msg
}

// Tf resolves a message with template data.
func (t *Translator) Tf(id string, data map[string]interface{}) string {
	msg, err := t.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		log.Debugf("Missing translation for %q: %v", id, err)
		return id
	}
	return msg
}
