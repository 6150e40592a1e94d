package validation

import "regexp"

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// US 5-digit ZIP, optional +4. The vote residency gate compares the stored
// form, so normalization happens at write time, not here.
var zipRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

func IsValidZip(zip string) bool {
	return zipRe.MatchString(zip)
}
