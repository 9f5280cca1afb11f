package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentgov/config"
	"github.com/BaSui01/agentgov/penalty"
	"github.com/BaSui01/agentgov/retraining"
)

// penaltyRow is the archived form of one penalty. The indexed columns serve
// the history queries; Payload carries the full snapshot.
type penaltyRow struct {
	ID           uint   `gorm:"primaryKey"`
	PenaltyID    string `gorm:"size:36;uniqueIndex"`
	AgentID      string `gorm:"size:128;index:idx_penalties_agent"`
	Level        int    `gorm:"index:idx_penalties_level"`
	Outcome      string `gorm:"size:32;index:idx_penalties_outcome"`
	MarkedUnfair bool
	AppliedAt    time.Time
	LiftedAt     *time.Time
	Payload      string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (penaltyRow) TableName() string { return "penalties" }

// appealRow is the archived form of one appeal. Appeals are archived twice,
// at filing and at review; the second write upserts over the first.
type appealRow struct {
	ID          uint   `gorm:"primaryKey"`
	AppealID    string `gorm:"size:36;uniqueIndex"`
	PenaltyID   string `gorm:"size:36;index:idx_appeals_penalty"`
	AgentID     string `gorm:"size:128;index:idx_appeals_agent"`
	Status      string `gorm:"size:16;index:idx_appeals_status"`
	Auto        bool
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	Payload     string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (appealRow) TableName() string { return "appeals" }

// sessionRow is the archived form of one finished retraining session.
type sessionRow struct {
	ID               uint   `gorm:"primaryKey"`
	SessionID        string `gorm:"size:36;uniqueIndex"`
	AgentID          string `gorm:"size:128;index:idx_sessions_agent"`
	Status           string `gorm:"size:16;index:idx_sessions_status"`
	StartedAt        time.Time
	CompletedAt      *time.Time
	FinalSuccessRate float64
	Payload          string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (sessionRow) TableName() string { return "retraining_sessions" }

// Archive is the durable governance history backed by a relational
// database. It implements penalty.Archiver.
type Archive struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps an already-open database and migrates the archive schema.
func New(db *gorm.DB, logger *zap.Logger) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("store: nil database")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&penaltyRow{}, &appealRow{}, &sessionRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate archive schema: %w", err)
	}
	return &Archive{
		db:     db,
		logger: logger.Named("store"),
	}, nil
}

// Open connects to the configured database, applies the pool settings, and
// migrates the archive schema.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Archive, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	a, err := New(db, logger)
	if err != nil {
		return nil, err
	}
	a.logger.Info("archive database connected", zap.String("driver", cfg.Driver))
	return a, nil
}

// ArchivePenalty upserts the penalty's snapshot keyed by its ID. Penalties
// are archived when applied and again when lifted.
func (a *Archive) ArchivePenalty(ctx context.Context, p penalty.Penalty) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode penalty %s: %w", p.ID, err)
	}
	row := penaltyRow{
		PenaltyID:    p.ID,
		AgentID:      p.AgentID,
		Level:        p.Level,
		Outcome:      string(p.Outcome),
		MarkedUnfair: p.MarkedUnfair,
		AppliedAt:    p.AppliedAt,
		LiftedAt:     p.LiftedAt,
		Payload:      string(payload),
	}
	err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "penalty_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"outcome", "marked_unfair", "lifted_at", "payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("archive penalty %s: %w", p.ID, err)
	}
	return nil
}

// ArchiveAppeal upserts the appeal's snapshot keyed by its ID.
func (a *Archive) ArchiveAppeal(ctx context.Context, ap penalty.Appeal) error {
	payload, err := json.Marshal(ap)
	if err != nil {
		return fmt.Errorf("encode appeal %s: %w", ap.ID, err)
	}
	row := appealRow{
		AppealID:    ap.ID,
		PenaltyID:   ap.PenaltyID,
		AgentID:     ap.AgentID,
		Status:      string(penalty.AppealPending),
		Auto:        ap.Auto,
		SubmittedAt: ap.SubmittedAt,
		Payload:     string(payload),
	}
	if ap.Review != nil {
		row.Status = string(ap.Review.Status)
		t := ap.Review.ReviewedAt
		row.ReviewedAt = &t
	}
	err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "appeal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "reviewed_at", "payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("archive appeal %s: %w", ap.ID, err)
	}
	return nil
}

// ArchiveSession upserts the retraining session's snapshot keyed by its ID.
func (a *Archive) ArchiveSession(ctx context.Context, s retraining.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	row := sessionRow{
		SessionID:        s.ID,
		AgentID:          s.AgentID,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		FinalSuccessRate: s.FinalSuccessRate,
		Payload:          string(payload),
	}
	err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "completed_at", "final_success_rate", "payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("archive session %s: %w", s.ID, err)
	}
	return nil
}

// PenaltyHistory returns the agent's archived penalties, most recent first.
// limit <= 0 means no limit.
func (a *Archive) PenaltyHistory(ctx context.Context, agentID string, limit int) ([]penalty.Penalty, error) {
	var rows []penaltyRow
	q := a.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("applied_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query penalty history for %s: %w", agentID, err)
	}
	out := make([]penalty.Penalty, 0, len(rows))
	for _, row := range rows {
		var p penalty.Penalty
		if err := json.Unmarshal([]byte(row.Payload), &p); err != nil {
			return nil, fmt.Errorf("decode penalty %s: %w", row.PenaltyID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// AppealHistory returns the agent's archived appeals, most recent first.
// limit <= 0 means no limit.
func (a *Archive) AppealHistory(ctx context.Context, agentID string, limit int) ([]penalty.Appeal, error) {
	var rows []appealRow
	q := a.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("submitted_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query appeal history for %s: %w", agentID, err)
	}
	out := make([]penalty.Appeal, 0, len(rows))
	for _, row := range rows {
		var ap penalty.Appeal
		if err := json.Unmarshal([]byte(row.Payload), &ap); err != nil {
			return nil, fmt.Errorf("decode appeal %s: %w", row.AppealID, err)
		}
		out = append(out, ap)
	}
	return out, nil
}

// SessionHistory returns the agent's archived retraining sessions, most
// recent first. limit <= 0 means no limit.
func (a *Archive) SessionHistory(ctx context.Context, agentID string, limit int) ([]retraining.Session, error) {
	var rows []sessionRow
	q := a.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query session history for %s: %w", agentID, err)
	}
	out := make([]retraining.Session, 0, len(rows))
	for _, row := range rows {
		var s retraining.Session
		if err := json.Unmarshal([]byte(row.Payload), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", row.SessionID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Ping verifies database connectivity for health checks.
func (a *Archive) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database pool: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database pool: %w", err)
	}
	return sqlDB.Close()
}
