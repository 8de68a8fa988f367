package entity

import "golang.org/x/exp/slices"

type Role string

const (
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
)

var Roles = []Role{RoleOrganizer, RoleParticipant}

func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}
