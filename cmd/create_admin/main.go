// create_admin creates an advisory-admin account, or promotes an existing one.
//
//	go run ./cmd/create_admin <email> <password> [full name]
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"krishismart/models"
	"krishismart/pkg/dbconn"
	"krishismart/pkg/session"
)

func main() {
	log.SetHandler(text.New(os.Stderr))
	if len(os.Args) < 3 {
		fmt.Println("usage: go run ./cmd/create_admin <email> <password> [full name]")
		os.Exit(2)
	}
	_ = godotenv.Load()

	email := session.NormalizeEmail(os.Args[1])
	password := os.Args[2]
	name := email
	if len(os.Args) > 3 {
		name = strings.Join(os.Args[3:], " ")
	}
	if err := session.ValidateSignUp(email, password, name); err != nil {
		log.WithError(err).Fatal("invalid account details")
	}

	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		dsn = "sqlite:krishismart.db"
	}
	db, err := dbconn.Open(dsn)
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}
	if err := dbconn.Migrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	created, user, err := ensureAdmin(db, email, password, name)
	if err != nil {
		log.WithError(err).Fatal("failed to create admin")
	}
	if created {
		fmt.Printf("created admin %s id=%s\n", user.Email, user.ID)
		return
	}
	fmt.Printf("promoted %s (id=%s) to admin\n", user.Email, user.ID)
}

// ensureAdmin creates the user with an admin profile, or flags the existing
// user's profile as admin. The password of an existing user is left alone.
func ensureAdmin(db *gorm.DB, email, password, name string) (bool, *models.User, error) {
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		return false, &existing, db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Profile{}).Where("user_id = ?", existing.ID).Update("is_admin", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				return nil
			}
			return tx.Create(&models.Profile{UserID: existing.ID, FullName: name, IsAdmin: true}).Error
		})
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil, err
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, nil, fmt.Errorf("bcrypt: %w", err)
	}
	user := &models.User{
		Email:          email,
		HashedPassword: hpw,
		Profile:        &models.Profile{FullName: name, IsAdmin: true},
	}
	if err := db.Create(user).Error; err != nil {
		return false, nil, err
	}
	return true, user, nil
}
