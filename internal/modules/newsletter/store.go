package newsletter

import (
	"context"
	"errors"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mx-space/newsletter/internal/models"
	"github.com/mx-space/newsletter/internal/pkg/pagination"
	"github.com/mx-space/newsletter/internal/pkg/response"
	"gorm.io/gorm"
)

// GormStore keeps subscribers in the fe_users table.
type GormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) FindActiveByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var user models.FrontendUser
	err := s.db.WithContext(ctx).
		Preload("Usergroups").
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toSubscriber(&user), nil
}

func (s *GormStore) Create(ctx context.Context, draft SubscriberDraft) (string, error) {
	user := models.FrontendUser{
		PID:        draft.StoragePID,
		Email:      draft.Email,
		FirstName:  draft.FirstName,
		LastName:   draft.LastName,
		MailActive: draft.MailActive,
		MailHTML:   draft.MailHTML,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&user).Error
	})
	if err != nil {
		if isDuplicateEmailError(err) {
			return "", ErrDuplicateEmail
		}
		return "", err
	}
	return user.ID, nil
}

func (s *GormStore) SetMailActive(ctx context.Context, id string, active bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.FrontendUser{}).
		Where("id = ?", id).
		Update("mail_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Deactivate(ctx context.Context, id string, purge bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.FrontendUser{}).
			Where("id = ?", id).
			Update("mail_active", false)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if !purge {
			return nil
		}
		return tx.Where("id = ?", id).Delete(&models.FrontendUser{}).Error
	})
}

// List returns one page of live records, newest first.
func (s *GormStore) List(ctx context.Context, q pagination.Query) ([]models.FrontendUser, response.Pagination, error) {
	var users []models.FrontendUser
	db := s.db.WithContext(ctx).Model(&models.FrontendUser{})
	page, err := pagination.Paginate(db, q, &users, func(tx *gorm.DB) *gorm.DB {
		return tx.Preload("Usergroups").Order("created_at DESC")
	})
	return users, page, err
}

func toSubscriber(u *models.FrontendUser) *Subscriber {
	return &Subscriber{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		MailActive: u.MailActive,
		MailHTML:   u.MailHTML,
		GroupCount: len(u.Usergroups),
	}
}

func isDuplicateEmailError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry")
}
