package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MotionPull/internal/codec"
	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	pkgch "MotionPull/pkg/clickhouse"
	applogger "MotionPull/pkg/logger"
)

const recordColumns = "created, resource_id, top_label, top_score, labels, scores, accel_x, accel_y, accel_z, gyro_x, gyro_y, gyro_z"

// RecordSchema returns the DDL for the records table. Sensor axes are stored
// as parallel arrays, one element per sample.
func RecordSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            created     DateTime64(3, 'UTC'),
            resource_id String,
            top_label   LowCardinality(String),
            top_score   Float64,
            labels      Array(LowCardinality(String)),
            scores      Array(Float64),
            accel_x     Array(Int16),
            accel_y     Array(Int16),
            accel_z     Array(Int16),
            gyro_x      Array(Float32),
            gyro_y      Array(Float32),
            gyro_z      Array(Float32)
        )
        ENGINE = MergeTree
        PARTITION BY toYYYYMM(created)
        ORDER BY (resource_id, created)
    `, table)}
}

// CHRecordStore implements RecordStore backed by ClickHouse.
type CHRecordStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHRecordStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHRecordStore {
	return &CHRecordStore{db: ch.DB(), table: table, l: l}
}

// Init creates the table if needed.
func (s *CHRecordStore) Init(ctx context.Context) error {
	for _, stmt := range RecordSchema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *CHRecordStore) Store(ctx context.Context, r *models.ClassificationRecord) error {
	return s.StoreBatch(ctx, []*models.ClassificationRecord{r})
}

// StoreBatch inserts records in one block.
func (s *CHRecordStore) StoreBatch(ctx context.Context, records []*models.ClassificationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s)", s.table, recordColumns))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r == nil || r.ResourceID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, recordToRow(r)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logError("clickhouse insert failed", err, applogger.Int("rows", len(records)))
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func (s *CHRecordStore) Latest(ctx context.Context, resourceID string) (*models.ClassificationRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE resource_id = ? ORDER BY created DESC LIMIT 1", recordColumns, s.table)
	row := s.db.QueryRowContext(ctx, q, resourceID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest record: %w", err)
	}
	return r, nil
}

// Query returns records for resourceID within [from, to], newest first.
func (s *CHRecordStore) Query(ctx context.Context, resourceID string, from, to time.Time, limit int) ([]*models.ClassificationRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE resource_id = ? AND created >= ? AND created <= ? ORDER BY created DESC LIMIT ?",
		recordColumns, s.table,
	)
	rows, err := s.db.QueryContext(ctx, q, resourceID, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.logError("clickhouse query failed", err, applogger.String("resource", resourceID))
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ClassificationRecord, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	if s.l != nil {
		s.l.Debug("clickhouse query",
			applogger.String("resource", resourceID),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHRecordStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHRecordStore) Close() error {
	return nil
}

func (s *CHRecordStore) logError(msg string, err error, fields ...applogger.Field) {
	if s.l == nil {
		return
	}
	s.l.Error(msg, append(fields, applogger.String("table", s.table), applogger.Error(err))...)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// recordRow mirrors the table columns.
type recordRow struct {
	Created    time.Time
	ResourceID string
	TopLabel   string
	TopScore   float64
	Labels     []string
	Scores     []float64
	AccelX     []int16
	AccelY     []int16
	AccelZ     []int16
	GyroX      []float32
	GyroY      []float32
	GyroZ      []float32
}

func toRow(r *models.ClassificationRecord) recordRow {
	row := recordRow{
		Created:    r.CreatedAt().UTC(),
		ResourceID: r.ResourceID,
		Labels:     make([]string, len(r.ActivityPrediction)),
		Scores:     make([]float64, len(r.ActivityPrediction)),
		AccelX:     make([]int16, len(r.SensorData)),
		AccelY:     make([]int16, len(r.SensorData)),
		AccelZ:     make([]int16, len(r.SensorData)),
		GyroX:      make([]float32, len(r.SensorData)),
		GyroY:      make([]float32, len(r.SensorData)),
		GyroZ:      make([]float32, len(r.SensorData)),
	}
	if top, ok := r.TopActivity(); ok {
		row.TopLabel, row.TopScore = top.Label, top.Value
	}
	for i, s := range r.ActivityPrediction {
		row.Labels[i], row.Scores[i] = s.Label, s.Value
	}
	for i, s := range r.SensorData {
		row.AccelX[i], row.AccelY[i], row.AccelZ[i] = s.AccelX, s.AccelY, s.AccelZ
		row.GyroX[i], row.GyroY[i], row.GyroZ[i] = s.GyroX, s.GyroY, s.GyroZ
	}
	return row
}

func recordToRow(r *models.ClassificationRecord) []interface{} {
	row := toRow(r)
	return []interface{}{
		row.Created, row.ResourceID, row.TopLabel, row.TopScore,
		row.Labels, row.Scores,
		row.AccelX, row.AccelY, row.AccelZ,
		row.GyroX, row.GyroY, row.GyroZ,
	}
}

func scanRecord(sc rowScanner) (*models.ClassificationRecord, error) {
	var row recordRow
	if err := sc.Scan(
		&row.Created, &row.ResourceID, &row.TopLabel, &row.TopScore,
		&row.Labels, &row.Scores,
		&row.AccelX, &row.AccelY, &row.AccelZ,
		&row.GyroX, &row.GyroY, &row.GyroZ,
	); err != nil {
		return nil, err
	}
	return fromRow(row)
}

func fromRow(row recordRow) (*models.ClassificationRecord, error) {
	if len(row.Labels) != len(row.Scores) {
		return nil, fmt.Errorf("labels/scores length mismatch: %d != %d", len(row.Labels), len(row.Scores))
	}
	n := len(row.AccelX)
	for _, l := range []int{len(row.AccelY), len(row.AccelZ), len(row.GyroX), len(row.GyroY), len(row.GyroZ)} {
		if l != n {
			return nil, fmt.Errorf("sensor column length mismatch: %d != %d", l, n)
		}
	}

	r := &models.ClassificationRecord{
		Created:            row.Created.UnixMilli(),
		ResourceID:         row.ResourceID,
		ActivityPrediction: make([]codec.LabeledScore, len(row.Labels)),
		SensorData:         make([]models.SensorReading, n),
	}
	for i := range row.Labels {
		r.ActivityPrediction[i] = codec.LabeledScore{Label: row.Labels[i], Value: row.Scores[i]}
	}
	for i := 0; i < n; i++ {
		r.SensorData[i] = models.SensorReading{
			AccelX: row.AccelX[i], AccelY: row.AccelY[i], AccelZ: row.AccelZ[i],
			GyroX: row.GyroX[i], GyroY: row.GyroY[i], GyroZ: row.GyroZ[i],
		}
	}
	return r, nil
}

var _ domrepo.RecordStore = (*CHRecordStore)(nil)
