package warehouse

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cosmescan/backend/internal/analysis"
	"github.com/cosmescan/backend/internal/errs"
	"github.com/cosmescan/backend/internal/logger"
	"github.com/cosmescan/backend/internal/models"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore is the local warehouse backend. It keeps the same
// check-then-act semantics as the production backend; only duplicate
// natural keys behave differently because products and users carry primary
// keys here.
type SQLiteStore struct {
	log *logger.Logger
	db  *sql.DB
}

// NewSQLiteStore opens (and initializes, if needed) the SQLite database.
func NewSQLiteStore(dbPath string, log *logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("error reading schema file: %w", err)
	}
	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SQLiteStore{
		log: log.With("service", "warehouse.SQLiteStore"),
		db:  db,
	}, nil
}

func (s *SQLiteStore) AppendScanLog(ctx context.Context, entry *models.ScanLog) (int64, error) {
	var maxID int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM scanlogs").Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("%w: scanlogs max id: %v", errs.ErrPersistence, err)
	}
	newID := maxID + 1

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scanlogs (id, user_id, barcode, ocr_result, analysis_result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, newID, entry.UserID, entry.Barcode, entry.OCRText, entry.AnalysisResult,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("%w: scanlogs insert: %v", errs.ErrPersistence, err)
	}

	entry.ID = newID
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.log.Info("scan log appended", "id", newID, "barcode", entry.Barcode)
	return newID, nil
}

func (s *SQLiteStore) SaveProductIfAbsent(ctx context.Context, outcome analysis.Outcome, barcode string) error {
	exists, err := s.rowExists(ctx, "products", barcode)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info("product already exists, skipping insert", "barcode", barcode)
		return nil
	}

	if !outcome.Parsed() {
		s.log.Warn("evaluation not structured, skipping product insert", "barcode", barcode)
		return nil
	}
	result := outcome.Result

	ingredients, err := json.Marshal(result.IngredientNames())
	if err != nil {
		return fmt.Errorf("%w: encode ingredients: %v", errs.ErrPersistence, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, product_name, company_name, category, ingredients,
			price_infered_without_tax, is_cosme, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, barcode, result.ProductName, result.CompanyName, result.Category, string(ingredients),
		result.PriceWithoutTax, result.IsCosme, now, now)
	if err != nil {
		return fmt.Errorf("%w: products insert: %v", errs.ErrPersistence, err)
	}

	s.log.Info("product saved", "barcode", barcode, "name", result.ProductName)
	return nil
}

func (s *SQLiteStore) SaveUserIfAbsent(ctx context.Context, profile *models.UserProfile) error {
	exists, err := s.rowExists(ctx, "users", profile.UID)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info("user already exists, skipping insert", "uid", profile.UID)
		return nil
	}

	problems, _ := json.Marshal(profile.SkinProblems.Normalized())
	avoid, _ := json.Marshal(profile.IngredientsToAvoid.Normalized())
	effects, _ := json.Marshal(profile.DesiredEffect.Normalized())

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, birth_date, gender, skin_type, skin_problems,
			ingredients_to_avoid, desired_effect, user_memo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, profile.UID, nullString(profile.BirthDateOnly()), nullString(profile.Gender),
		nullString(profile.SkinType), string(problems), string(avoid), string(effects),
		nullString(profile.Note), now, now)
	if err != nil {
		return fmt.Errorf("%w: users insert: %v", errs.ErrPersistence, err)
	}

	s.log.Info("user saved", "uid", profile.UID)
	return nil
}

func (s *SQLiteStore) RecentScanLogs(ctx context.Context, limit int) ([]*models.ScanLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, barcode, ocr_result, analysis_result, created_at, updated_at
		FROM scanlogs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: scanlogs query: %v", errs.ErrPersistence, err)
	}
	defer rows.Close()

	var results []*models.ScanLog
	for rows.Next() {
		var entry models.ScanLog
		var createdAt, updatedAt string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Barcode, &entry.OCRText,
			&entry.AnalysisResult, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanlogs scan: %v", errs.ErrPersistence, err)
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entry.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		results = append(results, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scanlogs rows: %v", errs.ErrPersistence, err)
	}
	return results, nil
}

func (s *SQLiteStore) rowExists(ctx context.Context, table, id string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE id = ? LIMIT 1", id).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s lookup: %v", errs.ErrPersistence, table, err)
	}
	return true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
