package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadEmbedded(t *testing.T) {
	b, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, "You are already subscribed.", b.Translate(language.English, "subscribe_already"))
	assert.Equal(t, "Ungültige Einsendung erkannt.", b.Translate(language.German, "subscribe_spam"))
}

func TestMatch(t *testing.T) {
	b, err := Load("en")
	require.NoError(t, err)

	cases := []struct {
		name  string
		prefs []string
		want  language.Tag
	}{
		{"empty", nil, language.English},
		{"german header", []string{"de-DE,de;q=0.9,en;q=0.5"}, language.German},
		{"unsupported", []string{"fr-FR"}, language.English},
		{"explicit wins", []string{"de", "en-US"}, language.German},
		{"skip blank", []string{"", "de"}, language.German},
		{"garbage", []string{"@@@"}, language.English},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, b.Match(tc.prefs...))
		})
	}
}

func TestTranslateFallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.yml": {Data: []byte("only_en: english only\n")},
		"loc/de.yml": {Data: []byte("only_en: \"\"\ngreeting: Hallo\n")},
	}
	b, err := LoadFS(fsys, "loc", "en")
	require.NoError(t, err)

	assert.Equal(t, "Hallo", b.Translate(language.German, "greeting"))
	assert.Equal(t, "english only", b.Translate(language.German, "only_en"))
	assert.Equal(t, "You are already subscribed.", b.Translate(language.German, "subscribe_already"))
	assert.Equal(t, "no_such_key", b.Translate(language.German, "no_such_key"))
}

func TestLoadFSErrors(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{"loc/de.yml": {Data: []byte("a: b\n")}}, "loc", "en")
	assert.Error(t, err)

	_, err = LoadFS(fstest.MapFS{"loc/en.yml": {Data: []byte("a: [\n")}}, "loc", "en")
	assert.Error(t, err)

	_, err = Load("not a tag!")
	assert.Error(t, err)
}

func TestLocalizer(t *testing.T) {
	b, err := Load("de")
	require.NoError(t, err)

	l := b.Localizer("fr")
	assert.Equal(t, language.German, l.Lang)
	assert.Equal(t, "Anmelden", l.T("button_subscribe"))

	var zero Localizer
	assert.Equal(t, "You are already subscribed.", zero.T("subscribe_already"))
	assert.Equal(t, "label_email", zero.T("label_email"))
}
