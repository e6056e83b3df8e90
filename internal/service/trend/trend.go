// Package trend 使用 DuckDB 对标注数据做时间分桶统计
package trend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/ashwinyue/chat-insight/internal/repository"
)

// 分桶粒度
const (
	GranularityDay   = "day"
	GranularityMonth = "month"
)

// ErrInvalidGranularity 不支持的分桶粒度
var ErrInvalidGranularity = errors.New("granularity must be day or month")

var bucketLayouts = map[string]string{
	GranularityDay:   "2006-01-02",
	GranularityMonth: "2006-01",
}

// PointReader 趋势数据来源
type PointReader interface {
	SentimentPoints(ctx context.Context) ([]repository.TimePoint, error)
	EmotionPoints(ctx context.Context) ([]repository.TimePoint, error)
}

// Point 一个时间桶内某标签的计数
type Point struct {
	Bucket string `json:"bucket"`
	Label  string `json:"label"`
	Count  int64  `json:"count"`
}

// Service 趋势分析
type Service struct {
	reader PointReader
	db     *sql.DB
	mu     sync.Mutex
}

// NewService 打开内存 DuckDB
func NewService(reader PointReader) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &Service{reader: reader, db: db}, nil
}

// Close 关闭连接
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SentimentTrend 情感标签按时间分桶
func (s *Service) SentimentTrend(ctx context.Context, granularity string) ([]Point, error) {
	if _, ok := bucketLayouts[granularity]; !ok {
		return nil, ErrInvalidGranularity
	}
	points, err := s.reader.SentimentPoints(ctx)
	if err != nil {
		return nil, err
	}
	return s.bucket(ctx, granularity, points)
}

// EmotionTrend 情绪按时间分桶
func (s *Service) EmotionTrend(ctx context.Context, granularity string) ([]Point, error) {
	if _, ok := bucketLayouts[granularity]; !ok {
		return nil, ErrInvalidGranularity
	}
	points, err := s.reader.EmotionPoints(ctx)
	if err != nil {
		return nil, err
	}
	return s.bucket(ctx, granularity, points)
}

// bucket 将数据载入临时表后用 date_trunc 聚合
// granularity 已在调用方白名单校验，可直接拼入 SQL
func (s *Service) bucket(ctx context.Context, granularity string, points []repository.TimePoint) ([]Point, error) {
	if len(points) == 0 {
		return []Point{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get duckdb connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "CREATE OR REPLACE TEMP TABLE points (ts TIMESTAMP, label VARCHAR)"); err != nil {
		return nil, fmt.Errorf("failed to create points table: %w", err)
	}
	defer conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS points")

	if err := load(ctx, conn, points); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT date_trunc('%s', ts) AS bucket, label, COUNT(*) AS count FROM points GROUP BY 1, 2 ORDER BY 1, 2",
		granularity,
	)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to bucket points: %w", err)
	}
	defer rows.Close()

	layout := bucketLayouts[granularity]
	out := make([]Point, 0)
	for rows.Next() {
		var (
			bucket time.Time
			p      Point
		)
		if err := rows.Scan(&bucket, &p.Label, &p.Count); err != nil {
			return nil, err
		}
		p.Bucket = bucket.UTC().Format(layout)
		out = append(out, p)
	}
	return out, rows.Err()
}

func load(ctx context.Context, conn *sql.Conn, points []repository.TimePoint) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO points VALUES (?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.Timestamp.UTC(), p.Label); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to load point: %w", err)
		}
	}
	return tx.Commit()
}
