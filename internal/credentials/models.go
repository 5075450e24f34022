package credentials

import "time"

// User is the persistent identity record. PasswordHash is never
// exposed outside this package.
type User struct {
	Id           int
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// PublicUser is the wire-safe projection of User: no password hash,
// no internal version counter.
type PublicUser struct {
	Id        int       `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		Id:        u.Id,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}
