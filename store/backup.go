package store

import (
	"context"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// CopyAllFrom bulk-copies every page of src into s using SQLite's native
// backup API, the same mechanism the source engine uses to stage an
// on-disk database into its in-memory working copy (and to persist the
// working copy back at the end of a run). It is restart-safe: Step(-1)
// drains the backup to completion in one call.
func (s *Store) CopyAllFrom(src *Store) error {
	dstConn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("acquiring destination connection: %w", err)
	}
	defer dstConn.Close()

	srcConn, err := src.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("acquiring source connection: %w", err)
	}
	defer srcConn.Close()

	var backupErr error
	err = dstConn.Raw(func(dstDriver any) error {
		dstSQLite, ok := dstDriver.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("destination connection is not a sqlite3 connection")
		}
		return srcConn.Raw(func(srcDriver any) error {
			srcSQLite, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("source connection is not a sqlite3 connection")
			}
			backup, err := dstSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return fmt.Errorf("starting backup: %w", err)
			}
			if _, stepErr := backup.Step(-1); stepErr != nil {
				backupErr = stepErr
				return nil
			}
			backupErr = backup.Finish()
			return nil
		})
	})
	if err != nil {
		return err
	}
	return backupErr
}
