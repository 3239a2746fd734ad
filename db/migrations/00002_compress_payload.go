package migrations

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

func init() {
	goose.AddMigrationContext(upCompressPayload, downDecompressPayload)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func upCompressPayload(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE pending_submissions ADD COLUMN payload_blob BLOB`)
	if err != nil {
		return fmt.Errorf("adding payload blob column : %w", err)
	}
	rows, err := tx.QueryContext(ctx, "SELECT trace_id, payload FROM pending_submissions")
	if err != nil {
		return fmt.Errorf("getting all rows: %w", err)
	}
	defer rows.Close()

	converted := make(map[string][]byte)
	for rows.Next() {
		var traceID string
		var payload sql.NullString
		if err := rows.Scan(&traceID, &payload); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		text := "{}"
		if payload.Valid && payload.String != "" {
			text = payload.String
		}
		blob, err := compress([]byte(text))
		if err != nil {
			return fmt.Errorf("compressing payload for %s : %w", traceID, err)
		}
		converted[traceID] = blob
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}

	for traceID, blob := range converted {
		_, err = tx.ExecContext(ctx, "UPDATE pending_submissions SET payload_blob = ? WHERE trace_id = ?", blob, traceID)
		if err != nil {
			return fmt.Errorf("updating row %s : %w", traceID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "ALTER TABLE pending_submissions DROP COLUMN payload"); err != nil {
		return fmt.Errorf("dropping text payload column : %w", err)
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE pending_submissions RENAME COLUMN payload_blob TO payload"); err != nil {
		return fmt.Errorf("renaming payload_blob column: %w", err)
	}
	return nil
}

func downDecompressPayload(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE pending_submissions ADD COLUMN payload_text TEXT NOT NULL DEFAULT '{}'`)
	if err != nil {
		return fmt.Errorf("failed to add text payload column for rollback: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT trace_id, payload FROM pending_submissions")
	if err != nil {
		return fmt.Errorf("failed to query existing submissions for rollback: %w", err)
	}
	defer rows.Close()

	converted := make(map[string]string)
	for rows.Next() {
		var traceID string
		var blob []byte
		if err := rows.Scan(&traceID, &blob); err != nil {
			return fmt.Errorf("failed to scan row for rollback: %w", err)
		}
		text := "{}"
		if len(blob) > 0 {
			raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(blob)))
			if err != nil {
				return fmt.Errorf("failed to decompress payload for %s: %w", traceID, err)
			}
			text = string(raw)
		}
		converted[traceID] = text
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error during rollback: %w", err)
	}

	for traceID, text := range converted {
		if _, err := tx.ExecContext(ctx, "UPDATE pending_submissions SET payload_text = ? WHERE trace_id = ?", text, traceID); err != nil {
			return fmt.Errorf("failed to update row for %s for rollback: %w", traceID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `ALTER TABLE pending_submissions DROP COLUMN payload`); err != nil {
		return fmt.Errorf("failed to drop blob payload column for rollback: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE pending_submissions RENAME COLUMN payload_text TO payload`); err != nil {
		return fmt.Errorf("failed to rename payload_text column for rollback: %w", err)
	}
	return nil
}
