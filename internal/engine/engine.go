// Package engine is the rental lifecycle state machine. Every operation takes
// the per-rental lock, validates the actor and the current state, applies the
// transition and its payment side effects in one transaction, and appends an
// audit line. A failed operation never persists partial state.
package engine

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/config"
	"github.com/karhabty/karhabty-backend/internal/gateway"
	"github.com/karhabty/karhabty-backend/internal/models"
	"github.com/karhabty/karhabty-backend/internal/services"
	"github.com/karhabty/karhabty-backend/internal/store"
	"github.com/karhabty/karhabty-backend/internal/wallet"
)

// Notifier pushes lifecycle events to the two parties of a rental. Delivery
// is best effort and happens after commit.
type Notifier interface {
	NotifyRentalEvent(rental *models.Rental, event string, data map[string]interface{})
}

type noopNotifier struct{}

func (noopNotifier) NotifyRentalEvent(*models.Rental, string, map[string]interface{}) {}

type Engine struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *wallet.Ledger
	gateway  gateway.PaymentGateway
	clock    Clock
	notifier Notifier
	log      *logrus.Logger
}

func New(cfg *config.Config, st *store.Store, ledger *wallet.Ledger, gw gateway.PaymentGateway, clock Clock, notifier Notifier, log *logrus.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Engine{
		cfg:      cfg,
		store:    st,
		ledger:   ledger,
		gateway:  gw,
		clock:    clock,
		notifier: notifier,
		log:      log,
	}
}

// Store exposes the persistence layer for read-only façade queries.
func (e *Engine) Store() *store.Store { return e.store }

// Ledger exposes the wallet ledger for the wallet façade.
func (e *Engine) Ledger() *wallet.Ledger { return e.ledger }

// withRentalLock serialises a state-changing operation on one rental: the
// redis lock keeps concurrent requests from piling into the database, the row
// lock inside fn is the hard guarantee.
func (e *Engine) withRentalLock(ctx context.Context, rentalID uint, fn func() error) error {
	if services.RedisClient == nil {
		return fn()
	}
	token, err := services.AcquireRentalLock(ctx, rentalID)
	if err != nil {
		if errors.Is(err, services.ErrRentalBusy) {
			return Errf(CodeInvalidStatus, "rental %d is being modified, retry shortly", rentalID)
		}
		// Redis being down must not take bookings down with it.
		e.log.WithError(err).Warn("rental lock unavailable, relying on row lock")
		return fn()
	}
	defer services.ReleaseRentalLock(ctx, rentalID, token)
	return fn()
}

// loadRental maps a missing rental onto the API error.
func (e *Engine) loadRental(tx *gorm.DB, rentalID uint) (*models.Rental, error) {
	rental, err := e.store.GetRentalForUpdate(tx, rentalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errf(CodeNotFound, "rental %d not found", rentalID)
		}
		return nil, err
	}
	return rental, nil
}

// afterCommit runs post-commit side effects: status cache refresh and event
// fan-out to both parties.
func (e *Engine) afterCommit(ctx context.Context, rental *models.Rental, event string, data map[string]interface{}) {
	if services.RedisClient != nil {
		if err := services.CacheRentalStatus(ctx, rental.ID, rental.Status); err != nil {
			e.log.WithError(err).Debug("status cache refresh failed")
		}
	}
	e.notifier.NotifyRentalEvent(rental, event, data)
}
