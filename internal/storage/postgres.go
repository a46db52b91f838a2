package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ScoreModel is the GORM mapping of the scores table.
type ScoreModel struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       *string   `gorm:"index"`
	Username     string
	Score        int `gorm:"index"`
	LinesCleared int
	SessionCode  string `gorm:"index"`
	CreatedAt    time.Time
}

func (ScoreModel) TableName() string { return "scores" }

// ScoreDB stores scores in Postgres through GORM.
type ScoreDB struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the scores table.
func OpenPostgres(dsn string) (*ScoreDB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ScoreModel{}); err != nil {
		return nil, err
	}
	return NewScoreDB(db), nil
}

// NewScoreDB wraps an already opened GORM handle.
func NewScoreDB(db *gorm.DB) *ScoreDB {
	return &ScoreDB{db: db}
}

// RecordScore inserts a score row.
func (s *ScoreDB) RecordScore(ctx context.Context, sc Score) error {
	m := ScoreModel{
		UserID:       sc.UserID,
		Username:     sc.Username,
		Score:        sc.Score,
		LinesCleared: sc.LinesCleared,
		SessionCode:  sc.SessionCode,
		CreatedAt:    sc.CreatedAt,
	}
	if sc.ID != "" {
		id, err := uuid.Parse(sc.ID)
		if err != nil {
			return err
		}
		m.ID = id
	} else {
		m.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// TopScores returns the highest scores, best first.
func (s *ScoreDB) TopScores(ctx context.Context, limit int) ([]Score, error) {
	var rows []ScoreModel
	if err := s.db.WithContext(ctx).
		Order("score DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Score, 0, len(rows))
	for _, r := range rows {
		out = append(out, Score{
			ID:           r.ID.String(),
			UserID:       r.UserID,
			Username:     r.Username,
			Score:        r.Score,
			LinesCleared: r.LinesCleared,
			SessionCode:  r.SessionCode,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *ScoreDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
