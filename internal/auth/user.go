package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/2beens/fitassess/pkg"
)

type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Age          int       `json:"age"`
	Gender       string    `json:"gender"`
	HeightCm     float64   `json:"height"`
	WeightKg     float64   `json:"weight"`
	Sport        string    `json:"sport"`
	NationalID   string    `json:"nationalId"`
	ProfileImage string    `json:"profileImage,omitempty"`
	JoinedAt     time.Time `json:"joinDate"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name            string  `json:"name"`
	Username        string  `json:"username"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirmPassword"`
	Age             int     `json:"age"`
	Gender          string  `json:"gender"`
	HeightCm        float64 `json:"height"`
	WeightKg        float64 `json:"weight"`
	Sport           string  `json:"sport"`
	NationalID      string  `json:"nationalId"`
	ProfileImage    string  `json:"profileImage"`
}

// ValidationError lists every invalid registration field, keyed by json field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range []string{
		"name", "username", "email", "password", "confirmPassword",
		"nationalId", "age", "gender", "height", "weight", "sport",
	} {
		if msg, ok := e.Fields[field]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
		}
	}
	return "invalid registration: " + strings.Join(parts, "; ")
}

func (r RegisterRequest) Validate() error {
	fields := map[string]string{}

	if strings.TrimSpace(r.Name) == "" {
		fields["name"] = "name is required"
	}
	switch {
	case strings.TrimSpace(r.Username) == "":
		fields["username"] = "username is required"
	case len(strings.TrimSpace(r.Username)) < 3:
		fields["username"] = "username must be at least 3 characters"
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		fields["email"] = "email is invalid"
	}
	switch {
	case r.Password == "":
		fields["password"] = "password is required"
	case len(r.Password) < pkg.MinPasswordLength:
		fields["password"] = fmt.Sprintf("password must be at least %d characters", pkg.MinPasswordLength)
	case len(r.Password) > pkg.MaxPasswordLength:
		fields["password"] = fmt.Sprintf("password must be at most %d characters", pkg.MaxPasswordLength)
	}
	if r.Password != r.ConfirmPassword {
		fields["confirmPassword"] = "passwords do not match"
	}
	switch {
	case r.NationalID == "":
		fields["nationalId"] = "national id is required"
	case len(r.NationalID) != 12 || !allDigits(r.NationalID):
		fields["nationalId"] = "national id must be 12 digits"
	}
	if r.Age < 1 || r.Age > 100 {
		fields["age"] = "please enter a valid age"
	}
	if r.Gender == "" {
		fields["gender"] = "gender is required"
	}
	if r.HeightCm <= 0 {
		fields["height"] = "please enter a valid height"
	}
	if r.WeightKg <= 0 {
		fields["weight"] = "please enter a valid weight"
	}
	if strings.TrimSpace(r.Sport) == "" {
		fields["sport"] = "sport is required"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (r RegisterRequest) User() User {
	return User{
		Name:         strings.TrimSpace(r.Name),
		Username:     strings.TrimSpace(r.Username),
		Email:        r.Email,
		Age:          r.Age,
		Gender:       r.Gender,
		HeightCm:     r.HeightCm,
		WeightKg:     r.WeightKg,
		Sport:        r.Sport,
		NationalID:   r.NationalID,
		ProfileImage: r.ProfileImage,
	}
}

func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
