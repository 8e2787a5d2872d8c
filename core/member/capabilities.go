package member

// IsClubHead reports whether usr holds the club_head role.
func IsClubHead(usr *User) bool {
	return usr != nil && usr.Role == RoleClubHead
}

// IsAdmin reports whether usr is an admin.
// The role and the admin flag are independent signals: either one grants admin.
func IsAdmin(usr *User) bool {
	return usr != nil && (usr.Role == RoleAdmin || usr.AdminFlag)
}

// CanManageEvents reports whether usr may award credits and run events.
func CanManageEvents(usr *User) bool {
	return IsClubHead(usr) || IsAdmin(usr)
}
