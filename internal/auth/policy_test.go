package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lab-inventory/internal/model"
)

func TestAllowedMatrix(t *testing.T) {
	cases := []struct {
		name  string
		level string
		roles []string
		want  bool
	}{
		{"standard allows anyone", model.SecurityStandard, []string{model.RoleEmployee}, true},
		{"standard allows no roles", model.SecurityStandard, nil, true},
		{"avance rejects employee", model.SecurityAvance, []string{model.RoleEmployee}, false},
		{"avance allows gestionnaire", model.SecurityAvance, []string{model.RoleGestionnaire}, true},
		{"avance allows expert", model.SecurityAvance, []string{model.RoleExpert}, true},
		{"avance allows admin", model.SecurityAvance, []string{model.RoleAdmin}, true},
		{"critique rejects employee", model.SecurityCritique, []string{model.RoleEmployee}, false},
		{"critique rejects gestionnaire", model.SecurityCritique, []string{model.RoleGestionnaire}, false},
		{"critique allows expert", model.SecurityCritique, []string{model.RoleExpert}, true},
		{"critique allows admin", model.SecurityCritique, []string{model.RoleAdmin}, true},
		{"critique rejects empty role set", model.SecurityCritique, nil, false},
		{"one qualifying role among many passes", model.SecurityCritique, []string{model.RoleEmployee, model.RoleExpert}, true},
		{"unknown level is unrestricted", "exotic", []string{model.RoleEmployee}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Allowed(tc.level, tc.roles))
		})
	}
}

func TestRequiredRoles(t *testing.T) {
	require.Nil(t, RequiredRoles(model.SecurityStandard))
	require.Equal(t, []string{model.RoleGestionnaire, model.RoleExpert, model.RoleAdmin},
		RequiredRoles(model.SecurityAvance))
	require.Equal(t, []string{model.RoleExpert, model.RoleAdmin},
		RequiredRoles(model.SecurityCritique))
}
