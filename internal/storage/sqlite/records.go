package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/tracelog"
	"github.com/yegors/atlas/pkg/logger"
)

// Open opens (and creates if needed) the SQLite database at path
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; queries never hold rows open across statements.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// RecordStorage persists parse records. It implements tracelog.Sink.
type RecordStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

var _ tracelog.Sink = (*RecordStorage)(nil)

// NewRecordStorage creates a new SQLite record storage
func NewRecordStorage(db *sql.DB, logger *logger.Logger) (*RecordStorage, error) {
	storage := &RecordStorage{
		db:     db,
		logger: logger.Named("sqlite-records"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize record storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *RecordStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS parse_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			schema_version TEXT NOT NULL,
			utterance_id TEXT,
			speaker TEXT NOT NULL,
			callsign TEXT,
			raw_text TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence REAL NOT NULL,
			confidence_tier TEXT NOT NULL,
			notes TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create parse_records table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS parse_instructions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			type TEXT NOT NULL,
			instr_action TEXT NOT NULL,
			value TEXT NOT NULL,
			unit TEXT,
			instr_condition TEXT,
			update_mode TEXT NOT NULL,
			rule TEXT,
			FOREIGN KEY (record_id) REFERENCES parse_records(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create parse_instructions table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_parse_records_callsign ON parse_records(callsign)`,
		`CREATE INDEX IF NOT EXISTS idx_parse_records_timestamp ON parse_records(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_parse_records_status ON parse_records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_parse_instructions_record_id ON parse_instructions(record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_parse_instructions_type ON parse_instructions(type)`,
	}

	for _, indexSQL := range indexes {
		if _, err = s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create record index: %w", err)
		}
	}

	return nil
}

// Append stores a trace record and its instructions in one transaction
func (s *RecordStorage) Append(record *tracelog.Record) error {
	_, err := s.StoreRecord(record)
	return err
}

// StoreRecord stores a trace record and returns its row ID
func (s *RecordStorage) StoreRecord(record *tracelog.Record) (int64, error) {
	res := record.Result
	notes, err := json.Marshal(res.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to encode notes: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO parse_records
		(schema_version, utterance_id, speaker, callsign, raw_text, status, confidence, confidence_tier, notes, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SchemaVersion,
		nullString(res.UtteranceID),
		res.Speaker,
		nullString(res.Callsign.String()),
		record.Text,
		string(res.Status),
		res.Confidence,
		string(res.Tier),
		string(notes),
		record.Timestamp.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert parse record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	for i, instr := range res.Instructions {
		value, err := json.Marshal(instr.Value)
		if err != nil {
			return 0, fmt.Errorf("failed to encode instruction value: %w", err)
		}
		rule := ""
		if instr.Provenance != nil {
			rule = instr.Provenance.Rule
		}
		if _, err := tx.Exec(
			`INSERT INTO parse_instructions
			(record_id, position, type, instr_action, value, unit, instr_condition, update_mode, rule)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, instr.Type.String(), instr.Action, string(value),
			nullString(instr.Unit), nullString(instr.Condition), string(instr.Update), nullString(rule),
		); err != nil {
			return 0, fmt.Errorf("failed to insert parse instruction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit parse record: %w", err)
	}

	s.logger.Debug("Stored parse record",
		logger.Int64("id", id),
		logger.String("callsign", res.Callsign.String()),
		logger.String("status", string(res.Status)),
		logger.Int("instructions", len(res.Instructions)))

	return id, nil
}

const selectRecords = `SELECT id, schema_version, utterance_id, speaker, callsign, raw_text, status, confidence, confidence_tier, notes, timestamp, created_at
	FROM parse_records`

// GetRecordsByCallsign returns records for a specific aircraft callsign
func (s *RecordStorage) GetRecordsByCallsign(callsign intent.Callsign, limit int) ([]*ParseRecord, error) {
	rows, err := s.db.Query(
		selectRecords+`
		WHERE callsign = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		callsign.String(), queryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by callsign: %w", err)
	}
	defer rows.Close()

	return s.scanRecordRows(rows)
}

// GetRecordsByTimeRange returns records within a time range, inclusive
func (s *RecordStorage) GetRecordsByTimeRange(startTime, endTime time.Time) ([]*ParseRecord, error) {
	rows, err := s.db.Query(
		selectRecords+`
		WHERE timestamp BETWEEN ? AND ?
		ORDER BY timestamp DESC, id DESC`,
		startTime.UTC().Format(time.RFC3339), endTime.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by time range: %w", err)
	}
	defer rows.Close()

	return s.scanRecordRows(rows)
}

// GetRecordsByStatus returns records with the given parse status
func (s *RecordStorage) GetRecordsByStatus(status intent.Status, limit int) ([]*ParseRecord, error) {
	rows, err := s.db.Query(
		selectRecords+`
		WHERE status = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		string(status), queryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by status: %w", err)
	}
	defer rows.Close()

	return s.scanRecordRows(rows)
}

// GetRecentRecords returns recent records across all aircraft
func (s *RecordStorage) GetRecentRecords(limit int) ([]*ParseRecord, error) {
	rows, err := s.db.Query(
		selectRecords+`
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		queryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	return s.scanRecordRows(rows)
}

// scanRecordRows scans database rows into ParseRecord structs and loads
// their instructions
func (s *RecordStorage) scanRecordRows(rows *sql.Rows) ([]*ParseRecord, error) {
	records := []*ParseRecord{}
	for rows.Next() {
		var (
			record                ParseRecord
			res                   intent.ParseResult
			utteranceID, callsign sql.NullString
			status, tier, notes   string
			timestamp, createdAt  string
		)

		if err := rows.Scan(
			&record.ID,
			&res.SchemaVersion,
			&utteranceID,
			&res.Speaker,
			&callsign,
			&record.Text,
			&status,
			&res.Confidence,
			&tier,
			&notes,
			&timestamp,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan parse record: %w", err)
		}

		var err error
		record.Timestamp, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}

		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		if err := json.Unmarshal([]byte(notes), &res.Notes); err != nil {
			return nil, fmt.Errorf("failed to decode notes of record %d: %w", record.ID, err)
		}
		if res.Notes == nil {
			res.Notes = []intent.Note{}
		}

		res.UtteranceID = utteranceID.String
		res.Callsign = intent.Callsign(callsign.String)
		res.Status = intent.Status(status)
		res.Tier = intent.Tier(tier)
		res.Instructions = []intent.Instruction{}
		record.Result = &res

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate parse records: %w", err)
	}
	rows.Close()

	for _, record := range records {
		if err := s.loadInstructions(record); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// loadInstructions fills the record's instructions in their original order
func (s *RecordStorage) loadInstructions(record *ParseRecord) error {
	rows, err := s.db.Query(
		`SELECT type, instr_action, value, unit, instr_condition, update_mode, rule
		FROM parse_instructions
		WHERE record_id = ?
		ORDER BY position`,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query parse instructions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			instr                 intent.Instruction
			typeName, value       string
			update                string
			unit, condition, rule sql.NullString
		)
		if err := rows.Scan(&typeName, &instr.Action, &value, &unit, &condition, &update, &rule); err != nil {
			return fmt.Errorf("failed to scan parse instruction: %w", err)
		}

		instr.Type, err = intent.ParseInstructionType(typeName)
		if err != nil {
			return fmt.Errorf("failed to decode instruction of record %d: %w", record.ID, err)
		}
		if err := json.Unmarshal([]byte(value), &instr.Value); err != nil {
			return fmt.Errorf("failed to decode instruction value of record %d: %w", record.ID, err)
		}
		instr.Unit = unit.String
		instr.Condition = condition.String
		instr.Update = intent.Update(update)
		if rule.Valid {
			instr.Provenance = &intent.Provenance{Rule: rule.String}
		}

		record.Result.Instructions = append(record.Result.Instructions, instr)
	}

	return rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func queryLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return limit
}
