package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
)

// Repository manages checkout session rows. Money columns are written once
// at creation; afterwards only status moves.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Insert persists a session and its frozen lines.
func (r *Repository) Insert(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetByID loads a session with its lines.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateStatus moves a session's status only when it currently holds one of
// the expected values. Returns false when the guard did not match, which
// means another caller transitioned it first.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.CheckoutSessionStatus, to enums.CheckoutSessionStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireStale flips every non-terminal session whose TTL elapsed before the
// cutoff to expired. Returns how many rows moved.
func (r *Repository) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status IN ? AND expires_at < ?",
			[]enums.CheckoutSessionStatus{enums.CheckoutSessionStatusCreated, enums.CheckoutSessionStatusValidated},
			cutoff).
		Update("status", enums.CheckoutSessionStatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
