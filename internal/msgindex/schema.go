package msgindex

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	hdr          VARCHAR PRIMARY KEY,
	code         VARCHAR NOT NULL,
	verb         VARCHAR NOT NULL,
	src          VARCHAR NOT NULL,
	dst          VARCHAR NOT NULL,
	ctx          VARCHAR NOT NULL,
	dtm          TIMESTAMP NOT NULL,
	plk          VARCHAR NOT NULL,
	raw_payload  BLOB,
	payload_json VARCHAR NOT NULL,
	seq          BIGINT NOT NULL
)
`

// seq backs "in insertion order" for all(): a monotonic counter rather than
// relying on dtm, which two messages may legitimately share.
const insertSQL = `
INSERT INTO messages (hdr, code, verb, src, dst, ctx, dtm, plk, raw_payload, payload_json, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (hdr) DO UPDATE SET
	code = EXCLUDED.code,
	verb = EXCLUDED.verb,
	src = EXCLUDED.src,
	dst = EXCLUDED.dst,
	ctx = EXCLUDED.ctx,
	dtm = EXCLUDED.dtm,
	plk = EXCLUDED.plk,
	raw_payload = EXCLUDED.raw_payload,
	payload_json = EXCLUDED.payload_json,
	seq = EXCLUDED.seq
`

const rowColumns = `hdr, code, verb, src, dst, ctx, dtm, plk, raw_payload, payload_json`

const selectByHeaderSQL = `SELECT ` + rowColumns + ` FROM messages WHERE hdr = ?`

const selectAllSQL = `SELECT ` + rowColumns + ` FROM messages ORDER BY seq`

const selectSinceSQL = `SELECT ` + rowColumns + ` FROM messages WHERE dtm >= ? ORDER BY dtm`

const deleteAllSQL = `DELETE FROM messages`

const statsRowsSQL = `SELECT count(*) FROM messages`

const statsDistinctCodesSQL = `SELECT count(DISTINCT code) FROM messages`
