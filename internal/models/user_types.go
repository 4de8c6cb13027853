package models

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the model for the 'users' table
type User struct {
	Base
	Name             string `json:"name" gorm:"size:120;not null"`
	Email            string `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash     string `json:"-" gorm:"size:255;not null"`
	Role             Role   `json:"role" gorm:"size:16;not null;default:USER"`
	IsSellerVerified bool   `json:"isSellerVerified" gorm:"not null;default:false"`
}

// Password Helper (Standard)
type Password struct {
	Plaintext *string
	Hash      string
}

func (p *Password) Set(plaintextPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.Hash = string(hash)
	p.Plaintext = &plaintextPassword
	return nil
}

func (p *Password) Matches(plaintextPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(p.Hash), []byte(plaintextPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
