// Package store is the persistence layer for the rental aggregate: rental,
// payment, breakdown, trip, handover and audit rows. Writes that span more
// than one of those happen in a single transaction; the rental row carries
// an optimistic lock version on top of the row-level lock.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karhabty/karhabty-backend/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConcurrentUpdate means another transaction modified the rental
	// between our read and write.
	ErrConcurrentUpdate = errors.New("store: concurrent rental update")
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for read-only query paths in handlers.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn atomically.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// GetRentalForUpdate loads the rental row under a FOR UPDATE lock. Every
// state-changing operation starts here; the lock is held to commit.
func (s *Store) GetRentalForUpdate(tx *gorm.DB, rentalID uint) (*models.Rental, error) {
	var rental models.Rental
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rental, rentalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: rental %d", ErrNotFound, rentalID)
	}
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// GetRental loads a rental with its references for read-only paths.
func (s *Store) GetRental(rentalID uint) (*models.Rental, error) {
	var rental models.Rental
	err := s.db.Preload("Renter").Preload("Car").Preload("Car.Owner").
		First(&rental, rentalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: rental %d", ErrNotFound, rentalID)
	}
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// SaveRental persists rental mutations with an optimistic version check.
func (s *Store) SaveRental(tx *gorm.DB, rental *models.Rental) error {
	previous := rental.LockVersion
	rental.LockVersion++
	result := tx.Model(&models.Rental{}).
		Where("id = ? AND lock_version = ?", rental.ID, previous).
		Select("status", "owner_arrived", "cancel_reason", "saved_card_id", "lock_version").
		Updates(rental)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: rental %d", ErrConcurrentUpdate, rental.ID)
	}
	return nil
}

// CreateRentalBundle writes the rental with its payment, breakdown and
// (for with-driver bookings) planned trip in one transaction. The aggregate
// exists fully or not at all.
func (s *Store) CreateRentalBundle(rental *models.Rental, payment *models.RentalPayment, breakdown *models.Breakdown, trip *models.PlannedTrip) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rental).Error; err != nil {
			return err
		}
		payment.RentalID = rental.ID
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		breakdown.RentalID = rental.ID
		if err := tx.Create(breakdown).Error; err != nil {
			return err
		}
		handover := &models.Handover{RentalID: rental.ID}
		if err := tx.Create(handover).Error; err != nil {
			return err
		}
		if trip != nil {
			trip.RentalID = rental.ID
			if err := tx.Create(trip).Error; err != nil {
				return err
			}
		}
		return s.AppendAudit(tx, rental.ID, "rental_created", rental.RenterID, "renter", "")
	})
}

func (s *Store) GetPayment(tx *gorm.DB, rentalID uint) (*models.RentalPayment, error) {
	var payment models.RentalPayment
	err := tx.Where("rental_id = ?", rentalID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: payment for rental %d", ErrNotFound, rentalID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) SavePayment(tx *gorm.DB, payment *models.RentalPayment) error {
	return tx.Save(payment).Error
}

func (s *Store) GetBreakdown(tx *gorm.DB, rentalID uint) (*models.Breakdown, error) {
	var breakdown models.Breakdown
	err := tx.Where("rental_id = ?", rentalID).First(&breakdown).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: breakdown for rental %d", ErrNotFound, rentalID)
	}
	if err != nil {
		return nil, err
	}
	return &breakdown, nil
}

func (s *Store) SaveBreakdown(tx *gorm.DB, breakdown *models.Breakdown) error {
	return tx.Save(breakdown).Error
}

func (s *Store) GetHandover(tx *gorm.DB, rentalID uint) (*models.Handover, error) {
	var handover models.Handover
	err := tx.Where("rental_id = ?", rentalID).First(&handover).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: handover for rental %d", ErrNotFound, rentalID)
	}
	if err != nil {
		return nil, err
	}
	return &handover, nil
}

func (s *Store) SaveHandover(tx *gorm.DB, handover *models.Handover) error {
	return tx.Save(handover).Error
}

// GetTripWithStops loads the planned trip and its stops in stop order.
func (s *Store) GetTripWithStops(tx *gorm.DB, rentalID uint) (*models.PlannedTrip, error) {
	var trip models.PlannedTrip
	err := tx.Preload("Stops", func(db *gorm.DB) *gorm.DB {
		return db.Order("stop_order ASC")
	}).Where("rental_id = ?", rentalID).First(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: trip for rental %d", ErrNotFound, rentalID)
	}
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (s *Store) SaveTrip(tx *gorm.DB, trip *models.PlannedTrip) error {
	return tx.Save(trip).Error
}

func (s *Store) SaveStop(tx *gorm.DB, stop *models.PlannedStop) error {
	return tx.Save(stop).Error
}

// AppendAudit writes one audit line; callers invoke it exactly once per
// state transition, inside the transition's transaction.
func (s *Store) AppendAudit(tx *gorm.DB, rentalID uint, event string, actorID uint, actorRole, details string) error {
	entry := models.AuditEntry{
		RentalID:  rentalID,
		Event:     event,
		ActorID:   actorID,
		ActorRole: actorRole,
		Details:   details,
	}
	return tx.Create(&entry).Error
}

// AuditTrail returns a rental's audit lines in commit order.
func (s *Store) AuditTrail(rentalID uint) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := s.db.Where("rental_id = ?", rentalID).Order("id ASC").Find(&entries).Error
	return entries, err
}

func (s *Store) GetCar(carID uint) (*models.Car, error) {
	var car models.Car
	err := s.db.Preload("Owner").First(&car, carID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: car %d", ErrNotFound, carID)
	}
	if err != nil {
		return nil, err
	}
	return &car, nil
}

func (s *Store) GetUser(userID uint) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetSavedCard(tx *gorm.DB, cardID uint) (*models.SavedCard, error) {
	var card models.SavedCard
	err := tx.First(&card, cardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: card %d", ErrNotFound, cardID)
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// ExpiredDepositRentals lists rentals still waiting on a deposit whose
// deadline has passed; fed to the expiry sweep.
func (s *Store) ExpiredDepositRentals(now time.Time) ([]models.Rental, error) {
	var rentals []models.Rental
	err := s.db.
		Joins("JOIN rental_payments ON rental_payments.rental_id = rentals.id").
		Where("rentals.status = ?", models.RentalStatusDepositRequired).
		Where("rental_payments.deposit_status <> ?", models.PurseStatusPaid).
		Where("rental_payments.deposit_due_at < ?", now).
		Find(&rentals).Error
	return rentals, err
}
