package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleKitchen  Role = "kitchen"
	RoleMotoboy  Role = "motoboy"
	RolePOS      Role = "pos"
)

// StaffRoles may drive order transitions.
var StaffRoles = []Role{RoleAdmin, RoleKitchen, RoleMotoboy, RolePOS}

func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleKitchen, RoleMotoboy, RolePOS:
		return true
	default:
		return false
	}
}

// IsStaff reports whether r is one of StaffRoles.
func (r Role) IsStaff() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Whatsapp     string    `json:"whatsapp"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NormalizeWhatsapp keeps only digits so "+55 (11) 99999-0000" and
// "5511999990000" match the same account.
func NormalizeWhatsapp(phone string) string {
	out := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if c := phone[i]; c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}
