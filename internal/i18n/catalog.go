// Package i18n holds the user-facing form messages and their translations.
// English text doubles as the catalog key, so an untranslated key prints as
// itself.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	FieldRequired   = "field required."
	InvalidEmail    = "enter a valid email address."
	InvalidPhone    = "enter a valid phone number."
	ConsentRequired = "please accept the privacy notice to continue."
	SubmitSuccess   = "your message was sent. we will get back to you shortly."
	SubmitFailure   = "something went wrong while sending your message. please try again later."
	Sending         = "Sending..."
)

var supported = []language.Tag{language.English, language.Turkish}

var matcher = language.NewMatcher(supported)

var turkish = map[string]string{
	FieldRequired:   "Bu alan zorunludur.",
	InvalidEmail:    "Geçerli bir e-posta adresi girin.",
	InvalidPhone:    "Geçerli bir telefon numarası girin (örn: 05XXXXXXXXX).",
	ConsentRequired: "KVKK aydınlatma metnini kabul etmeniz gerekmektedir.",
	SubmitSuccess:   "Mesajınız başarıyla gönderildi. En kısa sürede size dönüş yapacağız.",
	SubmitFailure:   "Mesaj gönderilirken bir hata oluştu. Lütfen daha sonra tekrar deneyin.",
	Sending:         "Gönderiliyor...",
}

var messages = newCatalog()

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range turkish {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.Turkish, key, text)
	}
	return b
}

// Printer returns a printer bound to the message catalog.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(messages))
}

// Match picks the best supported language for an Accept-Language header or a
// bare locale string. Empty input yields English.
func Match(accept string) language.Tag {
	if accept == "" {
		return language.English
	}
	_, idx := language.MatchStrings(matcher, accept)
	if idx < 0 || idx >= len(supported) {
		return language.English
	}
	return supported[idx]
}

// Supported lists the languages with a translation.
func Supported() []language.Tag {
	return append([]language.Tag(nil), supported...)
}
