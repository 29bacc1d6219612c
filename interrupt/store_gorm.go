package interrupt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// interruptRow is the relational projection of an Interrupt. Payload and
// response are stored as JSON blobs; the store never queries inside them.
type interruptRow struct {
	ID          uint   `gorm:"primaryKey"`
	ExecutionID string `gorm:"uniqueIndex;size:128;not null"`
	ThreadID    string `gorm:"size:128"`
	UserID      string `gorm:"index;size:128"`
	AgentID     string `gorm:"size:128"`
	Status      string `gorm:"size:16;not null"`
	Payload     string
	Response    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

func (interruptRow) TableName() string { return "interrupts" }

// GormStore persists interrupts in a SQL database through GORM. Any GORM
// dialect works; tests use the pure-Go sqlite driver.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore migrates the interrupts table and returns the store.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&interruptRow{}); err != nil {
		return nil, fmt.Errorf("migrate interrupts table: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "interrupt_gorm_store")),
	}, nil
}

func toRow(rec *Interrupt) (*interruptRow, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", rec.ExecutionID, err)
	}
	row := &interruptRow{
		ExecutionID: rec.ExecutionID,
		ThreadID:    rec.ThreadID,
		UserID:      rec.UserID,
		AgentID:     rec.AgentID,
		Status:      string(rec.Status),
		Payload:     string(payload),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		ResolvedAt:  rec.ResolvedAt,
	}
	if rec.Response != nil {
		resp, err := json.Marshal(rec.Response)
		if err != nil {
			return nil, fmt.Errorf("marshal response for %s: %w", rec.ExecutionID, err)
		}
		row.Response = string(resp)
	}
	return row, nil
}

func fromRow(row *interruptRow) (*Interrupt, error) {
	rec := &Interrupt{
		ExecutionID: row.ExecutionID,
		ThreadID:    row.ThreadID,
		UserID:      row.UserID,
		AgentID:     row.AgentID,
		Status:      Status(row.Status),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		ResolvedAt:  row.ResolvedAt,
	}
	if row.Payload != "" {
		if err := json.Unmarshal([]byte(row.Payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", row.ExecutionID, err)
		}
	}
	if row.Response != "" {
		rec.Response = &HumanResponse{}
		if err := json.Unmarshal([]byte(row.Response), rec.Response); err != nil {
			return nil, fmt.Errorf("unmarshal response for %s: %w", row.ExecutionID, err)
		}
	}
	return rec, nil
}

func (s *GormStore) Insert(ctx context.Context, rec *Interrupt) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert interrupt %s: %w", rec.ExecutionID, err)
	}
	return nil
}

func (s *GormStore) GetByExecutionID(ctx context.Context, executionID string) (*Interrupt, error) {
	var row interruptRow
	err := s.db.WithContext(ctx).Where("execution_id = ?", executionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read interrupt %s: %w", executionID, err)
	}
	return fromRow(&row)
}

func (s *GormStore) UpdateByExecutionID(ctx context.Context, rec *Interrupt) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	tx := s.db.WithContext(ctx).
		Model(&interruptRow{}).
		Where("execution_id = ?", rec.ExecutionID).
		Updates(map[string]any{
			"status":      row.Status,
			"payload":     row.Payload,
			"response":    row.Response,
			"updated_at":  row.UpdatedAt,
			"resolved_at": row.ResolvedAt,
		})
	if tx.Error != nil {
		return fmt.Errorf("update interrupt %s: %w", rec.ExecutionID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
