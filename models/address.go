package models

import "time"

// Address belongs to a user. At most one address per user has IsDefault set;
// the store clears the others when a default is written.
type Address struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Street       string    `json:"street"`
	Number       string    `json:"number"`
	Complement   string    `json:"complement"`
	Neighborhood string    `json:"neighborhood"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	ZipCode      string    `json:"zipCode"`
	IsDefault    bool      `json:"isDefault"`
	Lat          *float64  `json:"lat"`
	Lng          *float64  `json:"lng"`
	CreatedAt    time.Time `json:"createdAt"`
}
