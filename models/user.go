package models

import (
	"golang.org/x/crypto/bcrypt"
)

// User is an account able to log in. Only admins may write through the API.
type User struct {
	Base
	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"column:password;not null" json:"-"`
	Role         Role   `gorm:"not null;default:user" json:"role"`
}

func (User) TableName() string {
	return "users"
}

// HashPassword returns the bcrypt hash stored for users and protected galleries.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword verifies password against a bcrypt hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
