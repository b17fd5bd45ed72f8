package directory

import (
	"compass/internal/platform/models"
	"compass/internal/platform/repositories"
)

// Principal is the resolved identity making a request. It is derived per
// request from verified session claims plus the local user record and is
// read-only to the access-control core.
type Principal struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
}

// Directory answers "does this principal exist and is it an admin" from
// the local user store.
type Directory struct {
	users *repositories.UserRepository
}

func New(users *repositories.UserRepository) *Directory {
	return &Directory{users: users}
}

func (d *Directory) Resolve(userID string) (*Principal, error) {
	user, err := d.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return fromUser(user), nil
}

func (d *Directory) ResolveByExternalID(externalID string) (*Principal, error) {
	user, err := d.users.GetByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return fromUser(user), nil
}

func fromUser(user *models.User) *Principal {
	return &Principal{
		ID:         user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		IsAdmin:    user.IsAdmin(),
	}
}
