package user

import (
	"time"

	"github.com/google/uuid"
)

// Sex values accepted on registration. "None" is the unset sentinel;
// the evidence builder maps it to a fixed default.
const (
	SexMale   = "Male"
	SexFemale = "Female"
	SexNone   = "None"
)

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Birthdate    time.Time `json:"birthdate" db:"birthdate"`
	Sex          string    `json:"sex" db:"sex"`
	Admin        bool      `json:"admin" db:"admin"`
	RegisteredOn time.Time `json:"registered_on" db:"registered_on"`
}

func validSex(sex string) bool {
	return sex == SexMale || sex == SexFemale || sex == SexNone
}
