package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleHomePath(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleAdmin, "/admin/dashboard"},
		{RoleDirector, "/director/dashboard"},
		{RoleTeacher, "/teacher/dashboard"},
		{RoleParent, "/parent/home"},
		{Role("intruder"), LoginPath},
		{Role(""), LoginPath},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.HomePath(), "role %q", tt.role)
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleParent.Valid())
	assert.False(t, Role("intruder").Valid())
}
