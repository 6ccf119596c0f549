// Package i18n resolves (message key, language) pairs to text.
package i18n

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

type Key string

const (
	Greeting                     Key = "greeting"
	WhitelistedReward            Key = "whiteListedReward"
	InsertMyAddress              Key = "insertMyAddress"
	InsertMyEmail                Key = "insertMyEmail"
	GoingToAttestAddress         Key = "goingToAttestAddress"
	GoingToAttestEmail           Key = "goingToAttestEmail"
	WhitelistedEmailForReward    Key = "whitelistedAddressForReward"
	NotWhitelistedEmailForReward Key = "notWhitelistedAddressForReward"
	PrivateOrPublic              Key = "privateOrPublic"
	PrivateChosen                Key = "privateChosen"
	PublicChosen                 Key = "publicChosen"
	PleasePay                    Key = "pleasePay"
	ReceivedLessThanExpected     Key = "receivedLessThanExpected"
	ReceivedWrongAsset           Key = "receivedPaymentInWrongAsset"
	ReceivedFromMultiple         Key = "receivedPaymentFromMultipleAddresses"
	ReceivedNotFromExpected      Key = "receivedPaymentNotFromExpectedAddress"
	SwitchToSingleAddress        Key = "switchToSingleAddress"
	ReceivedYourPayment          Key = "receivedYourPayment"
	PaymentIsConfirmed           Key = "paymentIsConfirmed"
	VerificationEmailSubject     Key = "verificationEmailSubject"
	VerificationEmailText        Key = "verificationEmailText"
	VerificationEmailHTML        Key = "verificationEmailHtml"
	EmailWasSent                 Key = "emailWasSent"
	WrongVerificationCode        Key = "wrongVerificationCode"
	WrongVerificationCodeLast    Key = "wrongVerificationCodeLast"
	CodeConfirmed                Key = "codeConfirmedEmailInAttestation"
	FirstTimeBonus               Key = "attestedSuccessFirstTimeBonus"
	ReferredUserBonus            Key = "referredUserBonus"
	AlreadyAttested              Key = "alreadyAttested"
	CurrentAttestationFailed     Key = "currentAttestationFailed"
	PreviousAttestationFailed    Key = "previousAttestationFailed"
	SeeAttestationUnit           Key = "seeAttestationUnit"
	SavePrivateProfile           Key = "savePrivateProfile"
	ReferralProgram              Key = "weHaveReferralProgram"
	SelectLanguage               Key = "selectLanguage"
	BackToLanguageSelection      Key = "backToLanguageSelection"
	SomethingWentWrong           Key = "somethingWentWrong"
)

const DefaultLanguage = "en"

// templates is built once from the static translations; a broken entry
// fails at startup.
var templates = mustBuildCatalog(translations)

func mustBuildCatalog(translations map[string]map[Key]string) *catalog.Builder {
	b, err := buildCatalog(translations)
	if err != nil {
		panic(err)
	}
	return b
}

func buildCatalog(translations map[string]map[Key]string) (*catalog.Builder, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for lang, texts := range translations {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("i18n: language %q: %w", lang, err)
		}
		for key, tmpl := range texts {
			if err := b.SetString(tag, string(key), tmpl); err != nil {
				return nil, fmt.Errorf("i18n: %s/%s: %w", lang, key, err)
			}
		}
	}
	return b, nil
}

// Catalog holds the templates of the enabled languages. Missing keys fall
// back to English.
type Catalog struct {
	builder *catalog.Builder
	enabled map[string]language.Tag
	order   []string
}

// New builds a catalog for langs. Unknown language codes are skipped.
func New(langs ...string) *Catalog {
	c := &Catalog{builder: templates, enabled: map[string]language.Tag{}}
	for _, lang := range langs {
		if _, ok := translations[lang]; !ok {
			continue
		}
		if _, dup := c.enabled[lang]; dup {
			continue
		}
		c.enabled[lang] = language.MustParse(lang)
		c.order = append(c.order, lang)
	}
	if len(c.order) == 0 {
		c.enabled[DefaultLanguage] = language.English
		c.order = []string{DefaultLanguage}
	}
	return c
}

func (c *Catalog) Languages() []string {
	return append([]string(nil), c.order...)
}

func (c *Catalog) Multilingual() bool {
	return len(c.order) > 1
}

func (c *Catalog) Supports(lang string) bool {
	_, ok := c.enabled[lang]
	return ok
}

// Name is the language's own name, as shown in the language menu.
func (c *Catalog) Name(lang string) string {
	if n, ok := languageNames[lang]; ok {
		return n
	}
	return lang
}

// T renders key for lang. An unknown or disabled language renders in the
// first enabled one.
func (c *Catalog) T(lang string, key Key, args ...interface{}) string {
	tag, ok := c.enabled[lang]
	if !ok {
		tag = c.enabled[c.order[0]]
	}
	return message.NewPrinter(tag, message.Catalog(c.builder)).Sprintf(string(key), args...)
}

// Keys lists every message key, sorted.
func Keys() []Key {
	keys := make([]Key, 0, len(translations[DefaultLanguage]))
	for k := range translations[DefaultLanguage] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
