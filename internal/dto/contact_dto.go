package dto

type UpsertContactRequest struct {
	Name  string  `json:"name" validate:"required,max=120"`
	Phone string  `json:"phone" validate:"required,max=30"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type ContactResponse struct {
	UserID string  `json:"user_id"`
	Role   string  `json:"role"`
	Name   string  `json:"name"`
	Phone  string  `json:"phone"`
	Email  *string `json:"email,omitempty"`
}
