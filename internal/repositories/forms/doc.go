// Package forms provides the device-side persistence layer for form
// definitions.
//
// # Overview
//
// The package defines a Repository interface for lookups by database id and
// by (jrFormId, jrVersion), plus hard and soft deletion. A SQLite-backed
// implementation (SQLiteRepository) persists rows using a dbx.DBTX (either
// *sql.DB or *sql.Tx).
//
// # Versions
//
// A form without a version is stored with an empty jr_version; lookups with
// an empty version match exactly those rows.
//
// Typical Usage
//
//	repo := forms.NewSQLiteRepository(db)
//	f, _ := repo.Save(ctx, &models.Form{JrFormID: "household", DisplayName: "Household"})
//	latest, _ := repo.GetLatestByFormIDAndVersion(ctx, "household", "")
//	_ = repo.SoftDelete(ctx, f.ID)
package forms
