package instances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/dbx"
	"github.com/nexusforms/collect/internal/models"
)

const instanceColumns = `id, display_name, submission_uri, can_edit_when_complete, instance_file_path,
	jr_form_id, jr_version, status, last_status_change_date, deleted_date, geometry_type, geometry`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(s scanner) (*models.Instance, error) {
	i := &models.Instance{}
	var (
		status       string
		changed      int64
		deleted      sql.NullInt64
		geometryType sql.NullString
		geometry     sql.NullString
	)
	err := s.Scan(&i.ID, &i.DisplayName, &i.SubmissionURI, &i.CanEditWhenComplete, &i.InstanceFilePath,
		&i.JrFormID, &i.JrVersion, &status, &changed, &deleted, &geometryType, &geometry)
	if err != nil {
		return nil, err
	}
	i.Status = models.Status(status)
	i.LastStatusChangeDate = time.UnixMilli(changed).UTC()
	if deleted.Valid {
		d := time.UnixMilli(deleted.Int64).UTC()
		i.DeletedDate = &d
	}
	i.GeometryType = geometryType.String
	i.Geometry = geometry.String
	return i, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Instance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select instances: %w", err)
	}
	defer rows.Close()

	var result []*models.Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance row: %w", err)
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a single instance by id, or an error wrapping common.ErrorNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.Instance, error) {
	return r.get(ctx, r.db, id)
}

func (r *SQLiteRepository) get(ctx context.Context, db dbx.DBTX, id int64) (*models.Instance, error) {
	row := db.QueryRowContext(ctx, `select `+instanceColumns+` from instances where id=?`, id)
	i, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instance %d: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return i, nil
}

func (r *SQLiteRepository) GetOneByPath(ctx context.Context, path string) (*models.Instance, error) {
	row := r.db.QueryRowContext(ctx, `select `+instanceColumns+` from instances where instance_file_path=?`, path)
	i, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return i, nil
}

func (r *SQLiteRepository) GetAllNotDeleted(ctx context.Context) ([]*models.Instance, error) {
	return r.query(ctx, `select `+instanceColumns+` from instances where deleted_date is null order by id`)
}

func (r *SQLiteRepository) GetAllByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Instance, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for n, s := range statuses {
		args[n] = string(s)
	}
	return r.query(ctx, `select `+instanceColumns+` from instances
		where deleted_date is null and status in (`+placeholders+`) order by id`, args...)
}

func (r *SQLiteRepository) GetAllNotDeletedByFormIDAndVersion(ctx context.Context, formID, version string) ([]*models.Instance, error) {
	return r.query(ctx, `select `+instanceColumns+` from instances
		where deleted_date is null and jr_form_id=? and jr_version=? order by id`, formID, version)
}

// Save inserts the instance when ID is zero and updates it otherwise.
// LastStatusChangeDate is stamped on every save. An empty status is stored
// as incomplete.
func (r *SQLiteRepository) Save(ctx context.Context, in *models.Instance) (*models.Instance, error) {
	saved := in.Copy()
	saved.LastStatusChangeDate = r.now().UTC()
	if saved.Status == "" {
		saved.Status = models.StatusIncomplete
	}
	if !saved.Status.Valid() {
		return nil, fmt.Errorf("invalid instance status %q", saved.Status)
	}

	if saved.ID == 0 {
		query := `insert into instances (display_name, submission_uri, can_edit_when_complete, instance_file_path,
			jr_form_id, jr_version, status, last_status_change_date, deleted_date, geometry_type, geometry)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := r.db.ExecContext(ctx, query, saved.DisplayName, saved.SubmissionURI, saved.CanEditWhenComplete,
			saved.InstanceFilePath, saved.JrFormID, saved.JrVersion, string(saved.Status),
			saved.LastStatusChangeDate.UnixMilli(), nullableTime(saved.DeletedDate),
			nullable(saved.GeometryType), nullable(saved.Geometry))
		if err != nil {
			return nil, fmt.Errorf("failed to insert instance: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get inserted instance id: %w", err)
		}
		saved.ID = id
		return saved, nil
	}

	err := dbx.RunInTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := r.get(ctx, tx, saved.ID); err != nil {
			return err
		}
		query := `update instances set display_name=?, submission_uri=?, can_edit_when_complete=?,
			instance_file_path=?, jr_form_id=?, jr_version=?, status=?, last_status_change_date=?,
			deleted_date=?, geometry_type=?, geometry=? where id=?`
		_, err := tx.ExecContext(ctx, query, saved.DisplayName, saved.SubmissionURI, saved.CanEditWhenComplete,
			saved.InstanceFilePath, saved.JrFormID, saved.JrVersion, string(saved.Status),
			saved.LastStatusChangeDate.UnixMilli(), nullableTime(saved.DeletedDate),
			nullable(saved.GeometryType), nullable(saved.Geometry), saved.ID)
		if err != nil {
			return fmt.Errorf("failed to update instance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `delete from instances where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return expectOneRow(res, id)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`update instances set deleted_date=?, geometry_type=null, geometry=null where id=? and deleted_date is null`,
		r.now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to soft delete instance: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id int64) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("instance %d: %w", id, common.ErrorNotFound)
	}
	return nil
}
