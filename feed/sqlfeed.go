// File: feed/sqlfeed.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Telescope status read from the status table maintained by the telescope
// control system. The database is opened read-only.

package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/momentics/guppi-status/api"
)

const statusQuery = `
SELECT source, j2000_ra, j2000_dec, freq, observer, data_dir,
       receiver, rcvr_pol, ant_motion, az_actual, el_actual, lst
FROM status
ORDER BY rowid DESC
LIMIT 1`

// SQLFeed queries the telescope status table.
type SQLFeed struct {
	db *sql.DB
}

var _ api.TelescopeFeed = (*SQLFeed)(nil)

// OpenSQLFeed opens the status database at path read-only.
func OpenSQLFeed(path string) (*SQLFeed, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, unavailable("sql", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLFeed{db: db}, nil
}

// NewSQLFeed wraps an already opened database.
func NewSQLFeed(db *sql.DB) *SQLFeed { return &SQLFeed{db: db} }

// Read implements api.TelescopeFeed.
func (f *SQLFeed) Read(ctx context.Context) (api.TelescopeStatus, error) {
	var (
		r                         rawStatus
		observer, project         sql.NullString
		receiver, rcvrPol, motion sql.NullString
		az, el                    sql.NullFloat64
		lst                       sql.NullString
	)
	err := f.db.QueryRowContext(ctx, statusQuery).Scan(
		&r.Source, &r.RA, &r.Dec, &r.FreqMHz, &observer, &project,
		&receiver, &rcvrPol, &motion, &az, &el, &lst,
	)
	if err != nil {
		return api.TelescopeStatus{}, unavailable("sql", fmt.Errorf("query status: %w", err))
	}
	r.Observer, r.Project = observer.String, project.String
	r.Receiver, r.RcvrPol, r.Motion = receiver.String, rcvrPol.String, motion.String
	r.LST = lst.String
	if az.Valid && el.Valid {
		r.AzActual, r.ElActual = &az.Float64, &el.Float64
	}
	st, err := r.normalize(time.Now())
	if err != nil {
		return api.TelescopeStatus{}, unavailable("sql", err)
	}
	return st, nil
}

// Close releases the database handle.
func (f *SQLFeed) Close() error { return f.db.Close() }
