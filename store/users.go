package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lavraseats/lavraseats/models"
)

func (p *Pg) CreateUser(ctx context.Context, user *models.User) error {
	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (p *Pg) userBy(ctx context.Context, column string, value any) (*models.User, error) {
	var user models.User
	if err := p.db.WithContext(ctx).Where(column+" = ?", value).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (p *Pg) UserByID(ctx context.Context, id uint64) (*models.User, error) {
	return p.userBy(ctx, "id", id)
}

func (p *Pg) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.userBy(ctx, "email", email)
}

func (p *Pg) UserByCPF(ctx context.Context, cpf string) (*models.User, error) {
	return p.userBy(ctx, "cpf", cpf)
}

// ActivateUser marks the account active and burns its confirmation code.
func (p *Pg) ActivateUser(ctx context.Context, id uint64) error {
	res := p.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": true, "confirmation_code": nil})
	if res.Error != nil {
		return fmt.Errorf("activate user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureManager creates user as an active manager unless an account with the
// same email already exists. It reports whether a row was created.
func (p *Pg) EnsureManager(ctx context.Context, user *models.User) (bool, error) {
	if _, err := p.UserByEmail(ctx, user.Email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	user.Role = models.RoleManager
	user.Active = true
	user.ConfirmationCode = nil
	if err := p.CreateUser(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}
