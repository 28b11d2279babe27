package dataset

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/postgres"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/resilience"
)

// LoadFile reads a JSON array of school records from path.
func LoadFile(path string) ([]school.School, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()
	schools, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding dataset %s: %w", path, err)
	}
	return schools, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode reads a JSON array of schools. A leading UTF-8 BOM is skipped.
func Decode(r io.Reader) ([]school.School, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	var schools []school.School
	if err := json.NewDecoder(br).Decode(&schools); err != nil {
		return nil, err
	}
	return schools, nil
}

// WriteFile writes schools as a compact JSON array, replacing path.
func WriteFile(path string, schools []school.School) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if err := json.NewEncoder(f).Encode(schools); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// LoadPostgres reads every record from the schools table. Transient
// failures are retried up to attempts times.
func LoadPostgres(ctx context.Context, db *postgres.Client, attempts int) ([]school.School, error) {
	logger := slog.Default().With("component", "dataset")
	var schools []school.School
	err := resilience.Retry(ctx, "dataset-load", resilience.RetryConfig{MaxAttempts: attempts}, func(ctx context.Context) error {
		var err error
		schools, err = querySchools(ctx, db.DB)
		if err != nil {
			logger.Warn("dataset query failed", "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading dataset from postgres: %w", err)
	}
	return schools, nil
}

func querySchools(ctx context.Context, db *sql.DB) ([]school.School, error) {
	rows, err := db.QueryContext(ctx, `SELECT data FROM schools ORDER BY urn`)
	if err != nil {
		return nil, fmt.Errorf("querying schools: %w", err)
	}
	defer rows.Close()

	var schools []school.School
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning school row: %w", err)
		}
		var s school.School
		if err := json.Unmarshal(data, &s); err != nil {
			// corrupt rows fail the load without retry
			return nil, resilience.Permanent(fmt.Errorf("unmarshaling school row: %w", err))
		}
		schools = append(schools, s)
	}
	return schools, rows.Err()
}

// StorePostgres upserts schools into the schools table in one transaction.
func StorePostgres(ctx context.Context, db *postgres.Client, schools []school.School) error {
	return db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO schools (urn, data, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (urn) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()

		for i := range schools {
			s := &schools[i]
			if s.URN == "" {
				continue
			}
			data, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("marshaling school %s: %w", s.URN, err)
			}
			if _, err := stmt.ExecContext(ctx, string(s.URN), data); err != nil {
				return fmt.Errorf("upserting school %s: %w", s.URN, err)
			}
		}
		return nil
	})
}
