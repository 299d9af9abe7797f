// Package msgindex implements the append/replace message index: an
// embedded-database-backed table of recently seen messages, keyed by
// header, with lookup by field combination and a restricted passthrough
// query surface.
package msgindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// Index is an in-memory, append/replace table of recent messages, backed by
// an embedded DuckDB database opened fresh for each Index.
type Index struct {
	db  *sql.DB
	log *slog.Logger
	seq atomic.Int64
}

// New opens a fresh in-memory index. The returned Index owns its database
// connection; call Close when done with it.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate msgindex config: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One in-memory DuckDB instance per *sql.DB connection string; capping
	// the pool at one connection keeps every query against the same
	// instance instead of silently fanning out to independent databases.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &Index{db: db, log: cfg.Logger.With("component", "msgindex")}, nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Add inserts msg keyed by its header. If a row with the same header already
// existed, it is replaced and returned; otherwise Add returns (nil, nil).
func (idx *Index) Add(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	prior, err := idx.lookup(ctx, msg.Header())
	if err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(msg.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	pkt := msg.Packet()
	_, err = idx.db.ExecContext(ctx, insertSQL,
		pkt.Header(), pkt.Code(), string(pkt.Verb()), pkt.Src(), pkt.Dst(), pkt.Ctx(),
		pkt.Timestamp(), msg.PLK(), pkt.Payload(), string(payloadJSON), idx.seq.Add(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	idx.log.Debug("message indexed", "header", msg.Header(), "replaced", prior != nil)
	return prior, nil
}

// ContainsFilter is a subset-of-fields predicate for Contains. A nil field
// is not constrained; PLK matches as a substring of the stored, pipe-framed
// plk string.
type ContainsFilter struct {
	Hdr  *string
	Code *string
	Verb *string
	Src  *string
	Dst  *string
	Ctx  *string
	PLK  *string
}

// Contains reports whether any row matches every non-nil field of f.
func (idx *Index) Contains(ctx context.Context, f ContainsFilter) (bool, error) {
	where := ""
	var args []any
	add := func(col string, v *string, like bool) {
		if v == nil {
			return
		}
		if where != "" {
			where += " AND "
		}
		if like {
			where += col + " LIKE ?"
			args = append(args, "%"+*v+"%")
		} else {
			where += col + " = ?"
			args = append(args, *v)
		}
	}
	add("hdr", f.Hdr, false)
	add("code", f.Code, false)
	add("verb", f.Verb, false)
	add("src", f.Src, false)
	add("dst", f.Dst, false)
	add("ctx", f.Ctx, false)
	add("plk", f.PLK, true)

	query := "SELECT 1 FROM messages"
	if where != "" {
		query += " WHERE " + where
	}
	query += " LIMIT 1"

	var one int
	err := idx.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query contains: %w", err)
	}
	return true, nil
}

// All returns every message in insertion order.
func (idx *Index) All(ctx context.Context) ([]*protocol.Message, error) {
	rows, err := idx.db.QueryContext(ctx, selectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query all messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Since returns every message with dtm >= t, ordered by dtm.
func (idx *Index) Since(ctx context.Context, t time.Time) ([]*protocol.Message, error) {
	rows, err := idx.db.QueryContext(ctx, selectSinceSQL, t)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages since %s: %w", t, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Clr empties the index.
func (idx *Index) Clr(ctx context.Context) error {
	if _, err := idx.db.ExecContext(ctx, deleteAllSQL); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// Stats reports the row count and the number of distinct codes present.
func (idx *Index) Stats(ctx context.Context) (rows int, distinctCodes int, err error) {
	if err = idx.db.QueryRowContext(ctx, statsRowsSQL).Scan(&rows); err != nil {
		return 0, 0, fmt.Errorf("failed to count rows: %w", err)
	}
	if err = idx.db.QueryRowContext(ctx, statsDistinctCodesSQL).Scan(&distinctCodes); err != nil {
		return 0, 0, fmt.Errorf("failed to count distinct codes: %w", err)
	}
	return rows, distinctCodes, nil
}

// ByHeader returns the row keyed by hdr, or nil if none exists. Since hdr is
// the index's primary key, this is also "the most recent message with this
// header" — there can only ever be one.
func (idx *Index) ByHeader(ctx context.Context, hdr string) (*protocol.Message, error) {
	return idx.lookup(ctx, hdr)
}

func (idx *Index) lookup(ctx context.Context, hdr string) (*protocol.Message, error) {
	rows, err := idx.db.QueryContext(ctx, selectByHeaderSQL, hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to look up prior message: %w", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}

func scanMessages(rows *sql.Rows) ([]*protocol.Message, error) {
	var out []*protocol.Message
	for rows.Next() {
		var (
			hdr, code, verb, src, dst, ctx, plk, payloadJSON string
			dtm                                              time.Time
			rawPayload                                       []byte
		)
		if err := rows.Scan(&hdr, &code, &verb, &src, &dst, &ctx, &dtm, &plk, &rawPayload, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		payload := make(map[string]any)
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for %s: %w", hdr, err)
		}

		pkt := protocol.NewPacket(dtm, hdr, code, protocol.Verb(verb), src, dst, ctx, rawPayload)
		out = append(out, protocol.NewMessageFromStored(pkt, payload, plk))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return out, nil
}
