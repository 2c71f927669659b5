package database

import (
	"github.com/karhabty/karhabty-backend/internal/models"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	// Create tables if they don't exist
	err := db.AutoMigrate(
		&models.User{},
		&models.Car{},
		&models.SavedCard{},
		&models.UserDevice{},
		&models.Rental{},
		&models.RentalPayment{},
		&models.Breakdown{},
		&models.PlannedTrip{},
		&models.PlannedStop{},
		&models.Handover{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.AuditEntry{},
		&models.Review{},
	)
	if err != nil {
		return err
	}

	// Constrain the persisted enums; AutoMigrate will not add checks to
	// existing columns.
	db.Exec(`ALTER TABLE rentals DROP CONSTRAINT IF EXISTS rentals_status_check`)
	db.Exec(`ALTER TABLE rentals ADD CONSTRAINT rentals_status_check CHECK (status IN
		('PendingOwnerConfirmation', 'DepositRequired', 'Confirmed', 'Ongoing', 'Finished', 'Canceled'))`)

	db.Exec(`ALTER TABLE users DROP CONSTRAINT IF EXISTS users_user_type_check`)
	db.Exec(`ALTER TABLE users ADD CONSTRAINT users_user_type_check CHECK (user_type IN ('renter', 'owner'))`)

	return nil
}
