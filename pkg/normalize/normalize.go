// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package normalize canonicalizes user-supplied identity strings.
//
// # Usage
//
// Emails are the sign-in identifier, so two spellings of the same address
// must collapse to one stored value before any lookup or uniqueness check.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Email returns the canonical form of an email address.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Normalizes to NFC (composes "e" + combining acute into "é").
// 3. Lower-cases with language-neutral rules.
func Email(value string) string {
	value = strings.TrimSpace(value)
	value = norm.NFC.String(value)
	return cases.Lower(language.Und).String(value)
}

// Nickname trims a display name, normalizes it to NFC and collapses inner whitespace runs.
func Nickname(value string) string {
	value = norm.NFC.String(value)
	return strings.Join(strings.Fields(value), " ")
}
