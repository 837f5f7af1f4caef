// Package i18n provides locale negotiation and user-facing auth messages.
package i18n

import "golang.org/x/text/language"

var supported = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var matcher = language.NewMatcher(supported)

// DefaultLocale returns the fallback locale for unmatched requests.
func DefaultLocale() language.Tag {
	return language.AmericanEnglish
}

// Match negotiates the best supported locale from an Accept-Language header.
// Empty or unparseable headers fall back to the default locale.
func Match(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return DefaultLocale()
	}
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	return tag
}

// Key identifies a translatable user-facing message.
type Key string

const (
	// MsgSignInRejected is the generic refusal for any rejected sign-in
	// attempt. It is deliberately non-committal so responses never reveal
	// whether an email or provider identity already exists.
	MsgSignInRejected Key = "SIGN_IN_REJECTED"

	MsgSignedOut         Key = "SIGNED_OUT"
	MsgVerificationSent  Key = "VERIFICATION_SENT"
	MsgEmailVerified     Key = "EMAIL_VERIFIED"
	MsgInvalidCredential Key = "INVALID_CREDENTIAL"
)

var catalog = map[language.Tag]map[Key]string{
	language.AmericanEnglish: {
		MsgSignInRejected:    "Sign-in could not be completed with this account.",
		MsgSignedOut:         "You have been signed out.",
		MsgVerificationSent:  "If the address is valid, a verification message has been sent.",
		MsgEmailVerified:     "Email address verified.",
		MsgInvalidCredential: "Invalid email or password.",
	},
	language.BrazilianPortuguese: {
		MsgSignInRejected:    "Não foi possível concluir o acesso com esta conta.",
		MsgSignedOut:         "Você saiu da sua conta.",
		MsgVerificationSent:  "Se o endereço for válido, uma mensagem de verificação foi enviada.",
		MsgEmailVerified:     "Endereço de email verificado.",
		MsgInvalidCredential: "Email ou senha inválidos.",
	},
}

// Message renders a message key for a negotiated locale, falling back to
// the default locale when the key or locale is missing.
func Message(tag language.Tag, key Key) string {
	if messages, ok := catalog[tag]; ok {
		if msg, ok := messages[key]; ok {
			return msg
		}
	}
	return catalog[DefaultLocale()][key]
}
