package i18n

import (
	"regexp"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var placeholder = regexp.MustCompile(`%\[\d+\][a-z]`)

func placeholders(tmpl string) []string {
	found := placeholder.FindAllString(tmpl, -1)
	sort.Strings(found)
	return found
}

func TestEveryLocaleHasEveryKey(t *testing.T) {
	for lang, texts := range translations {
		assert.Len(t, texts, len(translations[DefaultLanguage]), lang)
		for _, key := range Keys() {
			tmpl, ok := texts[key]
			if !assert.True(t, ok, "%s misses %s", lang, key) {
				continue
			}
			assert.NotEmpty(t, tmpl)
			assert.Equal(t, placeholders(translations[DefaultLanguage][key]), placeholders(tmpl), "%s/%s placeholders", lang, key)
		}
		assert.Contains(t, languageNames, lang)
	}
}

func TestRender(t *testing.T) {
	c := New("en", "ru")
	require.True(t, c.Multilingual())
	assert.Equal(t, []string{"en", "ru"}, c.Languages())

	assert.Equal(t, "Thanks, going to attest your email: a@harvard.edu.", c.T("en", GoingToAttestEmail, "a@harvard.edu"))
	assert.Equal(t, "Спасибо, подтверждаем ваш email: a@harvard.edu.", c.T("ru", GoingToAttestEmail, "a@harvard.edu"))
	assert.Equal(t, "Wrong verification code! You have 3 attempts left.", c.T("en", WrongVerificationCode, 3))
	assert.Equal(t, "Please pay for the attestation: send 0.0005 BTC to addr\nbitcoin:addr?amount=0.0005",
		c.T("en", PleasePay, "addr", "0.0005", "bitcoin:addr?amount=0.0005"))
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	c := New("en")
	assert.False(t, c.Multilingual())
	assert.False(t, c.Supports("ru"))
	assert.Equal(t, c.T("en", InsertMyEmail), c.T("unknown", InsertMyEmail))
	assert.Equal(t, c.T("en", InsertMyEmail), c.T("ru", InsertMyEmail), "disabled language")

	only := New("xx", "ru", "ru")
	assert.Equal(t, []string{"ru"}, only.Languages())
	assert.Equal(t, "Русский", only.Name("ru"))
	assert.Equal(t, "xx", only.Name("xx"))

	none := New()
	assert.Equal(t, []string{DefaultLanguage}, none.Languages())
}

func TestBuildCatalog(t *testing.T) {
	b, err := buildCatalog(translations)
	require.NoError(t, err)
	assert.Contains(t, b.Languages(), language.Russian)

	_, err = buildCatalog(map[string]map[Key]string{"not a tag!": {Greeting: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a tag!")

	assert.Panics(t, func() { mustBuildCatalog(map[string]map[Key]string{"??": {Greeting: "hi"}}) })
}
