package forms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/dbx"
	"github.com/nexusforms/collect/internal/models"
)

const formColumns = `id, display_name, description, jr_form_id, jr_version, form_file_path,
	submission_uri, base64_rsa_public_key, geometry_xpath, auto_send, auto_delete, deleted, date`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanForm(s scanner) (*models.Form, error) {
	f := &models.Form{}
	var date int64
	err := s.Scan(&f.ID, &f.DisplayName, &f.Description, &f.JrFormID, &f.JrVersion, &f.FormFilePath,
		&f.SubmissionURI, &f.BASE64RSAPublicKey, &f.GeometryXPath, &f.AutoSend, &f.AutoDelete, &f.Deleted, &date)
	if err != nil {
		return nil, err
	}
	f.Date = time.UnixMilli(date).UTC()
	return f, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Form, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select forms: %w", err)
	}
	defer rows.Close()

	var result []*models.Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form row: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a single form by id, or an error wrapping common.ErrorNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.Form, error) {
	row := r.db.QueryRowContext(ctx, `select `+formColumns+` from forms where id=?`, id)
	f, err := scanForm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("form %d: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.Form, error) {
	return r.query(ctx, `select `+formColumns+` from forms where deleted=0 order by display_name, id`)
}

func (r *SQLiteRepository) GetAllByFormID(ctx context.Context, formID string) ([]*models.Form, error) {
	return r.query(ctx, `select `+formColumns+` from forms where jr_form_id=? order by date desc, id desc`, formID)
}

func (r *SQLiteRepository) GetAllByFormIDAndVersion(ctx context.Context, formID, version string) ([]*models.Form, error) {
	return r.query(ctx, `select `+formColumns+` from forms where jr_form_id=? and jr_version=? order by date desc, id desc`,
		formID, version)
}

func (r *SQLiteRepository) GetLatestByFormIDAndVersion(ctx context.Context, formID, version string) (*models.Form, error) {
	found, err := r.query(ctx, `select `+formColumns+` from forms where jr_form_id=? and jr_version=?
		order by deleted asc, date desc, id desc limit 1`, formID, version)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// Save inserts the form when f.ID is zero and updates it otherwise. A zero
// Date is stamped with the current time on insert.
func (r *SQLiteRepository) Save(ctx context.Context, f *models.Form) (*models.Form, error) {
	saved := *f
	if saved.Date.IsZero() {
		saved.Date = time.Now().UTC()
	}

	if saved.ID == 0 {
		query := `insert into forms (display_name, description, jr_form_id, jr_version, form_file_path,
			submission_uri, base64_rsa_public_key, geometry_xpath, auto_send, auto_delete, deleted, date)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := r.db.ExecContext(ctx, query, saved.DisplayName, saved.Description, saved.JrFormID, saved.JrVersion,
			saved.FormFilePath, saved.SubmissionURI, saved.BASE64RSAPublicKey, saved.GeometryXPath, saved.AutoSend,
			saved.AutoDelete, saved.Deleted, saved.Date.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("failed to insert form: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get inserted form id: %w", err)
		}
		saved.ID = id
		return &saved, nil
	}

	query := `update forms set display_name=?, description=?, jr_form_id=?, jr_version=?, form_file_path=?,
		submission_uri=?, base64_rsa_public_key=?, geometry_xpath=?, auto_send=?, auto_delete=?, deleted=?, date=?
		where id=?`
	res, err := r.db.ExecContext(ctx, query, saved.DisplayName, saved.Description, saved.JrFormID, saved.JrVersion,
		saved.FormFilePath, saved.SubmissionURI, saved.BASE64RSAPublicKey, saved.GeometryXPath, saved.AutoSend,
		saved.AutoDelete, saved.Deleted, saved.Date.UnixMilli(), saved.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update form: %w", err)
	}
	if err := expectOneRow(res, saved.ID); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `delete from forms where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}
	return expectOneRow(res, id)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `update forms set deleted=1 where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete form: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id int64) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("form %d: %w", id, common.ErrorNotFound)
	}
	return nil
}
