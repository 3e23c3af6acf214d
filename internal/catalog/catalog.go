// Package catalog keeps a DuckDB table describing every stored model:
// format, size, object and triangle counts, bounding box and index status.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/cad-viewer/backend/internal/mesh"
	"github.com/cad-viewer/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// ErrNotFound is returned for names the catalog does not hold.
var ErrNotFound = errors.New("model not found in catalog")

// Options tunes the DuckDB connection.
type Options struct {
	Threads     int
	MemoryLimit string
}

// Catalog is the model index.
type Catalog struct {
	db       *sql.DB
	path     string
	registry *mesh.Registry
	logger   *zap.Logger
}

const schema = `
	CREATE TABLE IF NOT EXISTS models (
		name        VARCHAR PRIMARY KEY,
		format      VARCHAR NOT NULL,
		size        BIGINT NOT NULL,
		objects     INTEGER NOT NULL DEFAULT 0,
		triangles   BIGINT NOT NULL DEFAULT 0,
		min_x       DOUBLE, min_y DOUBLE, min_z DOUBLE,
		max_x       DOUBLE, max_y DOUBLE, max_z DOUBLE,
		status      VARCHAR NOT NULL,
		error       VARCHAR,
		uploaded_at TIMESTAMP NOT NULL,
		indexed_at  TIMESTAMP
	)
`

const columns = `name, format, size, objects, triangles,
	min_x, min_y, min_z, max_x, max_y, max_z,
	status, error, uploaded_at, indexed_at`

// Open opens or creates the catalog at path. An empty path keeps the
// catalog in memory.
func Open(path string, opts Options, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "catalog"))

	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "512MB"
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create models table: %w", err)
	}

	logger.Info("catalog opened", zap.String("path", path))
	return &Catalog{
		db:       db,
		path:     path,
		registry: mesh.DefaultRegistry(),
		logger:   logger,
	}, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// MarkUploaded records a newly stored file as awaiting indexing. Any
// previous row for the same name is replaced.
func (c *Catalog) MarkUploaded(ctx context.Context, info *models.FileInfo) error {
	err := c.put(ctx, &models.ModelInfo{
		Name:       info.Name,
		Format:     string(mesh.ResolveFormat(info.Name)),
		Size:       info.Size,
		Status:     models.ModelStatusUploaded,
		UploadedAt: info.UploadedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record upload %s: %w", info.Name, err)
	}
	return nil
}

// SetStatus updates the index status of name.
func (c *Catalog) SetStatus(ctx context.Context, name string, status models.ModelStatus, msg string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE models SET status = ?, error = ? WHERE name = ?`,
		string(status), nullString(msg), name)
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Index decodes data as the format implied by name and stores its
// statistics. A decode failure is recorded on the row and returned.
func (c *Catalog) Index(ctx context.Context, info *models.FileInfo, data []byte) (*models.ModelInfo, error) {
	format := mesh.ResolveFormat(info.Name)
	row := &models.ModelInfo{
		Name:       info.Name,
		Format:     string(format),
		Size:       info.Size,
		UploadedAt: info.UploadedAt.UTC(),
	}

	node, err := c.registry.Decode(format, data)
	if err == nil {
		row.Objects, row.Triangles = node.Stats()
		if box, ok := mesh.Bounds(node); ok {
			row.Min = [3]float64{box.Min.X, box.Min.Y, box.Min.Z}
			row.Max = [3]float64{box.Max.X, box.Max.Y, box.Max.Z}
		}
		row.Status = models.ModelStatusIndexed
	} else {
		row.Status = models.ModelStatusError
		row.Error = err.Error()
	}
	now := time.Now().UTC()
	row.IndexedAt = &now

	if putErr := c.put(ctx, row); putErr != nil {
		return nil, putErr
	}

	if err != nil {
		c.logger.Warn("model failed to decode", zap.String("name", info.Name), zap.Error(err))
		return row, fmt.Errorf("decode %s: %w", info.Name, err)
	}
	c.logger.Debug("model indexed",
		zap.String("name", row.Name),
		zap.Int("objects", row.Objects),
		zap.Int("triangles", row.Triangles))
	return row, nil
}

func (c *Catalog) put(ctx context.Context, m *models.ModelInfo) error {
	var indexedAt any
	if m.IndexedAt != nil {
		indexedAt = *m.IndexedAt
	}
	_, err := c.db.ExecContext(ctx, `INSERT OR REPLACE INTO models (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.Format, m.Size, m.Objects, m.Triangles,
		m.Min[0], m.Min[1], m.Min[2], m.Max[0], m.Max[1], m.Max[2],
		string(m.Status), nullString(m.Error), m.UploadedAt, indexedAt)
	if err != nil {
		return fmt.Errorf("failed to store catalog row %s: %w", m.Name, err)
	}
	return nil
}

// Get returns the row for name.
func (c *Catalog) Get(ctx context.Context, name string) (*models.ModelInfo, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+columns+` FROM models WHERE name = ?`, name)
	m, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// List returns rows newest first. limit <= 0 returns everything.
func (c *Catalog) List(ctx context.Context, limit int) ([]*models.ModelInfo, error) {
	query := `SELECT ` + columns + ` FROM models ORDER BY uploaded_at DESC, name`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	defer rows.Close()

	var out []*models.ModelInfo
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes the row for name.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.ModelInfo, error) {
	var (
		m         models.ModelInfo
		status    string
		errMsg    sql.NullString
		lo, hi    [3]sql.NullFloat64
		indexedAt sql.NullTime
	)
	err := s.Scan(&m.Name, &m.Format, &m.Size, &m.Objects, &m.Triangles,
		&lo[0], &lo[1], &lo[2], &hi[0], &hi[1], &hi[2],
		&status, &errMsg, &m.UploadedAt, &indexedAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.ModelStatus(status)
	m.Error = errMsg.String
	for i := range 3 {
		m.Min[i] = lo[i].Float64
		m.Max[i] = hi[i].Float64
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		m.IndexedAt = &t
	}
	return &m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
