package database

import (
	"errors"

	"QQFarmBot/models"

	"gorm.io/gorm"
)

// Store is the gorm-backed account store handed to the session manager.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListAccounts() ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) GetAccount(uin string) (*models.Account, error) {
	var account models.Account
	err := s.db.Where("uin = ?", uin).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) SaveAccount(account *models.Account) error {
	return s.db.Save(account).Error
}

func (s *Store) DeleteAccount(uin string) error {
	return s.db.Where("uin = ?", uin).Delete(&models.Account{}).Error
}

func (s *Store) GetAdminUser(username string) (*models.AdminUser, error) {
	var user models.AdminUser
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) SaveAdminUser(user *models.AdminUser) error {
	return s.db.Save(user).Error
}
