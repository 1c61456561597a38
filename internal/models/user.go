package models

import "time"

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAgent    = "agent"
	RoleAdmin    = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleStaff, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// UserProfile matches the document in MongoDB. Role is fixed at registration.
type UserProfile struct {
	ID        string    `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email"`
	Password  string    `bson:"password" json:"-"`
	Name      string    `bson:"name" json:"name"`
	Phone     string    `bson:"phone" json:"phone"`
	Role      string    `bson:"role" json:"role"`
	AvatarURL string    `bson:"avatarUrl,omitempty" json:"avatar_url,omitempty"`
	Address   string    `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// ProfileUpdate carries the mutable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	AvatarURL *string `json:"avatar_url"`
}

func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.Address == nil && u.AvatarURL == nil
}

func (u ProfileUpdate) Apply(p *UserProfile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Address != nil {
		p.Address = *u.Address
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
}
