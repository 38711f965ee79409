// Package request holds the inbound payloads shared by the HTTP and socket
// adapters, and the validator both of them run.
package request

import "github.com/tenantauth/auth-backend/internal/core/ports"

type Register struct {
	Name     string `json:"name" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (r Register) Input() ports.RegisterInput {
	return ports.RegisterInput{Name: r.Name, Email: r.Email, Password: r.Password}
}

type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r Login) Input() ports.LoginInput {
	return ports.LoginInput{Email: r.Email, Password: r.Password}
}

type Refresh struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Callback struct {
	Code  string `query:"code" validate:"required"`
	State string `query:"state"`
}
