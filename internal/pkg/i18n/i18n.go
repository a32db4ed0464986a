package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yml
var localeFS embed.FS

// fallbacks are used when no catalog carries a key.
var fallbacks = map[string]string{
	"subscribe_success":          "You have successfully subscribed to the newsletter.",
	"subscribe_already":          "You are already subscribed.",
	"subscribe_success_new_user": "Thank you for subscribing! A new account has been created for you.",
	"subscribe_spam":             "Invalid submission detected.",
	"subscribe_invalid":          "Please fill in all required fields with valid values.",
	"unsubscribe_success":        "You have been unsubscribed from the newsletter.",
	"unsubscribe_already":        "You are not subscribed to the newsletter.",
	"unsubscribe_error":          "No subscription was found for this e-mail address.",
	"unsubscribe_invalid":        "Please enter a valid e-mail address.",
	"internal_error":             "Something went wrong. Please try again later.",
}

// Bundle holds message catalogs keyed by language.
type Bundle struct {
	def      language.Tag
	tags     []language.Tag
	catalogs map[language.Tag]map[string]string
	matcher  language.Matcher
}

// Load reads the embedded catalogs. defaultLang is used when negotiation
// finds nothing better; it must have a catalog.
func Load(defaultLang string) (*Bundle, error) {
	return LoadFS(localeFS, "locales", defaultLang)
}

// LoadFS reads every <lang>.yml under dir of fsys.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Bundle, error) {
	def, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLang, err)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	b := &Bundle{def: def, catalogs: make(map[language.Tag]map[string]string)}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yml" {
			continue
		}
		tag, err := language.Parse(strings.TrimSuffix(e.Name(), ".yml"))
		if err != nil {
			return nil, fmt.Errorf("locale file %q: %w", e.Name(), err)
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		messages := map[string]string{}
		if err := yaml.Unmarshal(content, &messages); err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", e.Name(), err)
		}
		b.catalogs[tag] = messages
	}
	if _, ok := b.catalogs[def]; !ok {
		return nil, fmt.Errorf("no catalog for default language %q", defaultLang)
	}

	// The default goes first so that the matcher falls back to it.
	b.tags = append(b.tags, def)
	for tag := range b.catalogs {
		if tag != def {
			b.tags = append(b.tags, tag)
		}
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

// Match picks the best supported language for the given preferences, which
// may be Accept-Language headers or plain tags.
func (b *Bundle) Match(prefs ...string) language.Tag {
	for _, p := range prefs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		desired, _, err := language.ParseAcceptLanguage(p)
		if err != nil || len(desired) == 0 {
			continue
		}
		_, idx, conf := b.matcher.Match(desired...)
		if conf != language.No {
			return b.tags[idx]
		}
	}
	return b.def
}

// Translate returns the message for key in lang, falling back to the default
// language, the built-in English text and finally the key itself.
func (b *Bundle) Translate(lang language.Tag, key string) string {
	if msgs, ok := b.catalogs[lang]; ok {
		if msg, ok := msgs[key]; ok && msg != "" {
			return msg
		}
	}
	if msg, ok := b.catalogs[b.def][key]; ok && msg != "" {
		return msg
	}
	if msg, ok := fallbacks[key]; ok {
		return msg
	}
	return key
}

// Localizer binds a Bundle to one language.
type Localizer struct {
	bundle *Bundle
	Lang   language.Tag
}

func (b *Bundle) Localizer(prefs ...string) Localizer {
	return Localizer{bundle: b, Lang: b.Match(prefs...)}
}

func (l Localizer) T(key string) string {
	if l.bundle == nil {
		if msg, ok := fallbacks[key]; ok {
			return msg
		}
		return key
	}
	return l.bundle.Translate(l.Lang, key)
}
