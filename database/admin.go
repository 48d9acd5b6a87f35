package database

import (
	"fmt"

	"QQFarmBot/logger"
	"QQFarmBot/models"

	"golang.org/x/crypto/bcrypt"
)

// EnsureAdminUser seeds the bootstrap admin account on first start. An
// existing user is left untouched so a password changed through the store
// survives restarts.
func (s *Store) EnsureAdminUser(username, password string) error {
	user, err := s.GetAdminUser(username)
	if err != nil {
		return fmt.Errorf("lookup admin user: %w", err)
	}
	if user != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.SaveAdminUser(&models.AdminUser{
		Username:     username,
		PasswordHash: string(hash),
		Role:         "admin",
	}); err != nil {
		return fmt.Errorf("save admin user: %w", err)
	}

	logger.Log.Infof("Created bootstrap admin user %q", username)
	return nil
}
