package auth

import "github.com/iliyamo/lab-inventory/internal/model"

// requiredRoles maps a device security level to the minimal role set allowed
// to act on it.  "standard" is deliberately absent: it carries no
// restriction.  The map is static policy and is re-evaluated on every
// checkout, return and scan against the device's current level.
var requiredRoles = map[string][]string{
	model.SecurityAvance:   {model.RoleGestionnaire, model.RoleExpert, model.RoleAdmin},
	model.SecurityCritique: {model.RoleExpert, model.RoleAdmin},
}

// Allowed reports whether a caller holding the given roles may act on a
// device of the given security level.  The caller passes when its role set
// intersects the required set; unknown levels behave like "standard".
func Allowed(level string, roles []string) bool {
	required, ok := requiredRoles[level]
	if !ok {
		return true
	}
	for _, have := range roles {
		for _, want := range required {
			if have == want {
				return true
			}
		}
	}
	return false
}

// RequiredRoles returns the role names gating the given security level, or
// nil when the level is unrestricted.  Useful for error messages.
func RequiredRoles(level string) []string {
	return requiredRoles[level]
}
