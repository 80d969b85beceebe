package swap

import (
	"database/sql"
	"errors"
	"fmt"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/sarchlab/vmsim/mem/vm"
)

// SQLiteStore keeps page images as rows of a SQLite table. Missing rows read
// as zeros.
type SQLiteStore struct {
	blockChecker
	db     *sql.DB
	ownsDB bool

	readStmt    *sql.Stmt
	writeStmt   *sql.Stmt
	discardStmt *sql.Stmt
}

// OpenSQLiteStore opens (or creates) the database file at path.
func OpenSQLiteStore(path string, g vm.Geometry) (*SQLiteStore, error) {
	if path == "" {
		path = "vmsim_swap.sqlite3"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	s, err := NewSQLiteStore(db, g)
	if err != nil {
		db.Close()
		return nil, err
	}

	s.ownsDB = true

	return s, nil
}

// NewSQLiteStore creates a store on an existing database connection.
func NewSQLiteStore(db *sql.DB, g vm.Geometry) (*SQLiteStore, error) {
	s := &SQLiteStore{
		blockChecker: blockChecker{
			pageSize: g.PageSize(),
			numPages: g.NumPages,
		},
		db: db,
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS swap_pages (
	pid INTEGER NOT NULL,
	page INTEGER NOT NULL,
	block BLOB NOT NULL,
	PRIMARY KEY (pid, page)
);`)
	if err != nil {
		return nil, fmt.Errorf("creating swap table: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		s.closeStatements()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.readStmt, err = s.db.Prepare(
		`SELECT block FROM swap_pages WHERE pid = ? AND page = ?`)
	if err != nil {
		return err
	}

	s.writeStmt, err = s.db.Prepare(
		`INSERT OR REPLACE INTO swap_pages (pid, page, block) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}

	s.discardStmt, err = s.db.Prepare(`DELETE FROM swap_pages WHERE pid = ?`)

	return err
}

// ReadPage fills block with the image of a page.
func (s *SQLiteStore) ReadPage(pid vm.PID, page uint32, block []byte) error {
	if err := s.check(page, block); err != nil {
		return err
	}

	var stored []byte

	err := s.readStmt.QueryRow(pid, page).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		zero(block)
		return nil
	}

	if err != nil {
		return err
	}

	if len(stored) != len(block) {
		return fmt.Errorf("stored block of pid %d page %d has %d bytes",
			pid, page, len(stored))
	}

	copy(block, stored)

	return nil
}

// WritePage stores block as the image of a page.
func (s *SQLiteStore) WritePage(pid vm.PID, page uint32, block []byte) error {
	if err := s.check(page, block); err != nil {
		return err
	}

	_, err := s.writeStmt.Exec(pid, page, block)

	return err
}

// Discard deletes every page of an address space.
func (s *SQLiteStore) Discard(pid vm.PID) error {
	_, err := s.discardStmt.Exec(pid)
	return err
}

// Close releases the prepared statements, and the database if the store
// opened it.
func (s *SQLiteStore) Close() error {
	s.closeStatements()

	if s.ownsDB {
		return s.db.Close()
	}

	return nil
}

func (s *SQLiteStore) closeStatements() {
	for _, stmt := range []*sql.Stmt{s.readStmt, s.writeStmt, s.discardStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}
