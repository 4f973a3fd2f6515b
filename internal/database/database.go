package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookswap/config"
	"bookswap/internal/domain"
	"bookswap/internal/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.BookView{},
		&models.PointTransaction{},
		&models.PaymentEvent{},
		&models.ExchangeRequest{},
		&models.Notification{},
		&models.AuditLog{},
	)
}

// SeedAdmin creates the admin account on first start. It does nothing when
// the email or password is unset or the account already exists.
func SeedAdmin(ctx context.Context, db *gorm.DB, cfg *config.AdminConfig) error {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" || cfg.Password == "" {
		return nil
	}
	var existing models.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.User{
		Email:        email,
		Username:     cfg.Username,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
	}
	if err := db.WithContext(ctx).Omit("points").Create(admin).Error; err != nil {
		return err
	}
	log.WithField("email", email).Info("admin account seeded")
	return nil
}
