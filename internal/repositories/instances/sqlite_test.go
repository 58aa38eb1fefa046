package instances

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	r := NewSQLiteRepository(testutil.NewDB(t))
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	return r
}

func seed(t *testing.T, r *SQLiteRepository, i models.Instance) *models.Instance {
	t.Helper()
	saved, err := r.Save(context.Background(), &i)
	require.NoError(t, err)
	return saved
}

func TestSave_InsertThenGet(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	in := seed(t, r, models.Instance{
		InstanceFilePath:    "instances/a/a.xml",
		JrFormID:            "household",
		JrVersion:           "3",
		DisplayName:         "Household",
		SubmissionURI:       "https://example.org/submission",
		CanEditWhenComplete: true,
		GeometryType:        "Point",
		Geometry:            `{"type":"Point","coordinates":[36.8,-1.2]}`,
	})
	require.NotZero(t, in.ID)
	assert.Equal(t, models.StatusIncomplete, in.Status, "empty status is stored as incomplete")

	got, err := r.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(in, got))
}

func TestSave_UpdateKeepsID(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	in := seed(t, r, models.Instance{InstanceFilePath: "instances/a/a.xml", JrFormID: "f"})

	upd := in.Copy()
	upd.Status = models.StatusComplete
	upd.CanEditWhenComplete = false
	upd.GeometryType = ""
	upd.Geometry = ""
	saved, err := r.Save(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, in.ID, saved.ID)

	got, err := r.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, got.Status)
	assert.False(t, got.CanEditWhenComplete)
}

func TestSave_UpdateMissingRow(t *testing.T) {
	r := newRepo(t)

	_, err := r.Save(context.Background(), &models.Instance{ID: 7, InstanceFilePath: "x", JrFormID: "f"})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSave_RejectsUnknownStatus(t *testing.T) {
	r := newRepo(t)

	_, err := r.Save(context.Background(), &models.Instance{InstanceFilePath: "x", JrFormID: "f", Status: "sent"})
	require.Error(t, err)
}

func TestSave_DuplicatePathFails(t *testing.T) {
	r := newRepo(t)

	seed(t, r, models.Instance{InstanceFilePath: "instances/a/a.xml", JrFormID: "f"})
	_, err := r.Save(context.Background(), &models.Instance{InstanceFilePath: "instances/a/a.xml", JrFormID: "f"})
	require.Error(t, err, "the instance folder is a unique key")
}

func TestGetOneByPath(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	in := seed(t, r, models.Instance{InstanceFilePath: "instances/a/a.xml", JrFormID: "f"})

	got, err := r.GetOneByPath(ctx, "instances/a/a.xml")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in.ID, got.ID)

	missing, err := r.GetOneByPath(ctx, "instances/b/b.xml")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestQueries_SkipSoftDeleted(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	a := seed(t, r, models.Instance{InstanceFilePath: "a", JrFormID: "X", JrVersion: "1", Status: models.StatusComplete})
	b := seed(t, r, models.Instance{InstanceFilePath: "b", JrFormID: "X", JrVersion: "1", Status: models.StatusSubmitted,
		GeometryType: "Point", Geometry: "{}"})
	seed(t, r, models.Instance{InstanceFilePath: "c", JrFormID: "X", JrVersion: "2", Status: models.StatusIncomplete})

	require.NoError(t, r.SoftDelete(ctx, b.ID))
	require.ErrorIs(t, r.SoftDelete(ctx, b.ID), common.ErrorNotFound, "already deleted")

	all, err := r.GetAllNotDeleted(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	v1, err := r.GetAllNotDeletedByFormIDAndVersion(ctx, "X", "1")
	require.NoError(t, err)
	require.Len(t, v1, 1)
	assert.Equal(t, a.ID, v1[0].ID)

	complete, err := r.GetAllByStatus(ctx, models.StatusComplete, models.StatusSubmitted)
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	deleted, err := r.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
	assert.Empty(t, deleted.Geometry, "soft delete clears geometry")
}

func TestGetAllByStatus_NoStatuses(t *testing.T) {
	r := newRepo(t)

	got, err := r.GetAllByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	in := seed(t, r, models.Instance{InstanceFilePath: "a", JrFormID: "f"})
	require.NoError(t, r.Delete(ctx, in.ID))

	_, err := r.Get(ctx, in.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.ErrorIs(t, r.Delete(ctx, in.ID), common.ErrorNotFound)
}

func TestDelete_ExecErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("delete from instances where id=\\?").
		WithArgs(int64(5)).
		WillReturnError(errors.New("database is locked"))

	err = NewSQLiteRepository(db).Delete(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete instance")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_UpdateRollsBackWhenRowVanished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from instances where id=\\?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err = NewSQLiteRepository(db).Save(context.Background(),
		&models.Instance{ID: 3, InstanceFilePath: "a", JrFormID: "f"})
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
