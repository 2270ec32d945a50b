package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/cosmescan/backend/internal/analysis"
	"github.com/cosmescan/backend/internal/config"
	"github.com/cosmescan/backend/internal/errs"
	"github.com/cosmescan/backend/internal/gcp"
	"github.com/cosmescan/backend/internal/logger"
	"github.com/cosmescan/backend/internal/models"
)

// BigQueryStore is the production warehouse backend. BigQuery enforces no
// key constraints, so the existence checks here are the only duplicate
// protection, and concurrent first-time writers for the same key can each
// append a row.
type BigQueryStore struct {
	log    *logger.Logger
	client *bigquery.Client
	cfg    config.Warehouse
}

// NewBigQueryStore connects to the configured project and dataset.
func NewBigQueryStore(ctx context.Context, cfg config.Warehouse, credentialsFile string, log *logger.Logger) (*BigQueryStore, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("warehouse project is not configured")
	}
	client, err := bigquery.NewClient(ctx, cfg.Project, gcp.ClientOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &BigQueryStore{
		log:    log.With("service", "warehouse.BigQueryStore"),
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *BigQueryStore) tableFQN(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.cfg.Project, s.cfg.Dataset, table)
}

type scanLogRow struct {
	ID             int64     `bigquery:"id"`
	UserID         string    `bigquery:"user_id"`
	Barcode        string    `bigquery:"barcode"`
	OCRResult      string    `bigquery:"ocr_result"`
	AnalysisResult string    `bigquery:"analysis_result"`
	CreatedAt      time.Time `bigquery:"created_at"`
	UpdatedAt      time.Time `bigquery:"updated_at"`
}

type productRow struct {
	ID              string              `bigquery:"id"`
	ProductName     bigquery.NullString `bigquery:"product_name"`
	CompanyName     bigquery.NullString `bigquery:"company_name"`
	Category        bigquery.NullString `bigquery:"category"`
	Ingredients     []string            `bigquery:"ingredients"`
	PriceWithoutTax int64               `bigquery:"price_infered_without_tax"`
	IsCosme         bool                `bigquery:"is_cosme"`
	CreatedAt       time.Time           `bigquery:"created_at"`
	UpdatedAt       time.Time           `bigquery:"updated_at"`
}

type userRow struct {
	ID                 string              `bigquery:"id"`
	BirthDate          bigquery.NullDate   `bigquery:"birth_date"`
	Gender             bigquery.NullString `bigquery:"gender"`
	SkinType           bigquery.NullString `bigquery:"skin_type"`
	SkinProblems       []string            `bigquery:"skin_problems"`
	IngredientsToAvoid []string            `bigquery:"ingredients_to_avoid"`
	DesiredEffect      []string            `bigquery:"desired_effect"`
	UserMemo           bigquery.NullString `bigquery:"user_memo"`
	CreatedAt          time.Time           `bigquery:"created_at"`
	UpdatedAt          time.Time           `bigquery:"updated_at"`
}

func (s *BigQueryStore) AppendScanLog(ctx context.Context, entry *models.ScanLog) (int64, error) {
	// Read current max, then append max+1. Concurrent writers can read the
	// same max and collide; the table has no uniqueness to stop them.
	q := s.client.Query(fmt.Sprintf("SELECT MAX(id) AS max_id FROM %s", s.tableFQN(s.cfg.Tables.ScanLogs)))
	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: scanlogs max id: %v", errs.ErrPersistence, err)
	}

	var row struct {
		MaxID bigquery.NullInt64 `bigquery:"max_id"`
	}
	var maxID int64
	if err := it.Next(&row); err != nil && !errors.Is(err, iterator.Done) {
		return 0, fmt.Errorf("%w: scanlogs max id: %v", errs.ErrPersistence, err)
	}
	if row.MaxID.Valid {
		maxID = row.MaxID.Int64
	}
	newID := maxID + 1

	now := time.Now().UTC()
	ins := s.client.Dataset(s.cfg.Dataset).Table(s.cfg.Tables.ScanLogs).Inserter()
	err = ins.Put(ctx, &scanLogRow{
		ID:             newID,
		UserID:         entry.UserID,
		Barcode:        entry.Barcode,
		OCRResult:      entry.OCRText,
		AnalysisResult: entry.AnalysisResult,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: scanlogs insert: %v", errs.ErrPersistence, err)
	}

	entry.ID = newID
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.log.Info("scan log appended", "id", newID, "barcode", entry.Barcode)
	return newID, nil
}

func (s *BigQueryStore) SaveProductIfAbsent(ctx context.Context, outcome analysis.Outcome, barcode string) error {
	exists, err := s.rowExists(ctx, s.cfg.Tables.Products, barcode)
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

	now := time.Now().UTC()
	ins := s.client.Dataset(s.cfg.Dataset).Table(s.cfg.Tables.Products).Inserter()
	err = ins.Put(ctx, &productRow{
		ID:              barcode,
		ProductName:     nullableString(result.ProductName),
		CompanyName:     nullableString(result.CompanyName),
		Category:        nullableString(result.Category),
		Ingredients:     result.IngredientNames(),
		PriceWithoutTax: result.PriceWithoutTax,
		IsCosme:         result.IsCosme,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return fmt.Errorf("%w: products insert: %v", errs.ErrPersistence, err)
	}

	s.log.Info("product saved", "barcode", barcode, "name", result.ProductName)
	return nil
}

func (s *BigQueryStore) SaveUserIfAbsent(ctx context.Context, profile *models.UserProfile) error {
	exists, err := s.rowExists(ctx, s.cfg.Tables.Users, profile.UID)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info("user already exists, skipping insert", "uid", profile.UID)
		return nil
	}

	var birthDate bigquery.NullDate
	if d, err := civil.ParseDate(profile.BirthDateOnly()); err == nil {
		birthDate = bigquery.NullDate{Date: d, Valid: true}
	}

	now := time.Now().UTC()
	ins := s.client.Dataset(s.cfg.Dataset).Table(s.cfg.Tables.Users).Inserter()
	err = ins.Put(ctx, &userRow{
		ID:                 profile.UID,
		BirthDate:          birthDate,
		Gender:             nullableString(profile.Gender),
		SkinType:           nullableString(profile.SkinType),
		SkinProblems:       profile.SkinProblems.Normalized(),
		IngredientsToAvoid: profile.IngredientsToAvoid.Normalized(),
		DesiredEffect:      profile.DesiredEffect.Normalized(),
		UserMemo:           nullableString(profile.Note),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return fmt.Errorf("%w: users insert: %v", errs.ErrPersistence, err)
	}

	s.log.Info("user saved", "uid", profile.UID)
	return nil
}

func (s *BigQueryStore) RecentScanLogs(ctx context.Context, limit int) ([]*models.ScanLog, error) {
	q := s.client.Query(fmt.Sprintf(
		"SELECT id, user_id, barcode, ocr_result, analysis_result, created_at, updated_at FROM %s ORDER BY created_at DESC, id DESC LIMIT @limit",
		s.tableFQN(s.cfg.Tables.ScanLogs)))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: scanlogs query: %v", errs.ErrPersistence, err)
	}

	var results []*models.ScanLog
	for {
		var row scanLogRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: scanlogs scan: %v", errs.ErrPersistence, err)
		}
		results = append(results, &models.ScanLog{
			ID:             row.ID,
			UserID:         row.UserID,
			Barcode:        row.Barcode,
			OCRText:        row.OCRResult,
			AnalysisResult: row.AnalysisResult,
			CreatedAt:      row.CreatedAt,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return results, nil
}

// rowExists point-queries a table by natural key. Queries are parameterized;
// ids never get spliced into SQL text.
func (s *BigQueryStore) rowExists(ctx context.Context, table, id string) (bool, error) {
	q := s.client.Query(fmt.Sprintf("SELECT id FROM %s WHERE id = @id LIMIT 1", s.tableFQN(table)))
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %s lookup: %v", errs.ErrPersistence, table, err)
	}

	var row struct {
		ID string `bigquery:"id"`
	}
	err = it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s lookup: %v", errs.ErrPersistence, table, err)
	}
	return true, nil
}

func (s *BigQueryStore) Close() error {
	return s.client.Close()
}

func nullableString(v string) bigquery.NullString {
	return bigquery.NullString{StringVal: v, Valid: v != ""}
}
