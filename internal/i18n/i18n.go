// Package i18n localizes user-facing messages in English and Chinese.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localesFS embed.FS

const (
	English = "en"
	Chinese = "zh"
)

var supported = []language.Tag{language.English, language.Chinese}

// Translator is created once and passed to whatever renders messages.
type Translator struct {
	bundle     *goi18n.Bundle
	matcher    language.Matcher
	localizers map[string]*goi18n.Localizer
}

// New loads the embedded message files.
func New() (*Translator, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.Glob(localesFS, "locales/*.yaml")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(localesFS, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	t := &Translator{
		bundle:     bundle,
		matcher:    language.NewMatcher(supported),
		localizers: make(map[string]*goi18n.Localizer),
	}
	for _, tag := range supported {
		base, _ := tag.Base()
		t.localizers[base.String()] = goi18n.NewLocalizer(bundle, tag.String())
	}
	return t, nil
}

// Match picks the supported language closest to the given tags or
// Accept-Language value. Unknown input yields English.
func (t *Translator) Match(preferred ...string) string {
	var tags []language.Tag
	for _, p := range preferred {
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return English
	}
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// T renders messageID in lang. Missing messages render as their ID.
func (t *Translator) T(lang, messageID string, data map[string]interface{}) string {
	loc, ok := t.localizers[t.Match(lang)]
	if !ok {
		loc = t.localizers[English]
	}
	msg, err := loc.Localize(&goi18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
	if err != nil || strings.TrimSpace(msg) == "" {
		return messageID
	}
	return msg
}
