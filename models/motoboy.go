package models

import "time"

// Motoboy is a courier. UserID points at the login account; Whatsapp is kept
// as a secondary lookup for accounts created before the link existed.
type Motoboy struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId"`
	Name      string    `json:"name"`
	Whatsapp  string    `json:"whatsapp"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
