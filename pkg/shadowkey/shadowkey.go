// Package shadowkey normalizes thing and shadow names so two different
// byte encodings of the same visible string resolve to the same
// shadow.Key.
package shadowkey

import "golang.org/x/text/unicode/norm"

// Normalize returns s in NFC form. internal/localwatch applies it to the
// path segments it maps to a shadow.Key, and the shadow CLI commands to
// their thing/name arguments. Keys from the config file's shadow list and
// from cloud push messages are used as given, without normalization.
func Normalize(s string) string {
	return norm.NFC.String(s)
}
