// Package pipeline sequences one scan: OCR, profile load, model evaluation,
// and persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/cosmescan/backend/internal/analysis"
	"github.com/cosmescan/backend/internal/logger"
	"github.com/cosmescan/backend/internal/models"
	"github.com/cosmescan/backend/internal/ocr"
	"github.com/cosmescan/backend/internal/storage"
	"github.com/cosmescan/backend/internal/warehouse"
)

// Stage names a completed pipeline step, in execution order. Observers
// receive each one as it finishes.
type Stage string

const (
	StageTextExtracted  Stage = "text_extracted"
	StageProfileLoaded  Stage = "profile_loaded"
	StageEvaluated      Stage = "evaluated"
	StageLogAppended    Stage = "log_appended"
	StageUserEnsured    Stage = "user_ensured"
	StageProductEnsured Stage = "product_ensured"
	StageDone           Stage = "done"
)

// Result is what a completed scan returns to the caller.
type Result struct {
	OCRText     string `json:"ocr_result"`
	ProfileText string `json:"user_profile"`
	AnalysisRaw string `json:"analysis_result"`
}

// Analyzer runs the scan pipeline. Stages run strictly in sequence; the
// first failure aborts the rest with no rollback of completed writes.
type Analyzer struct {
	log       *logger.Logger
	blobs     storage.Blobs
	extractor ocr.Extractor
	engine    analysis.Engine
	store     warehouse.Store
	timeout   time.Duration
}

// New wires the pipeline from its collaborators.
func New(blobs storage.Blobs, extractor ocr.Extractor, engine analysis.Engine, store warehouse.Store, timeout time.Duration, log *logger.Logger) *Analyzer {
	return &Analyzer{
		log:       log.With("service", "pipeline.Analyzer"),
		blobs:     blobs,
		extractor: extractor,
		engine:    engine,
		store:     store,
		timeout:   timeout,
	}
}

// Run executes one scan end to end. notify, when non-nil, is called after
// each completed stage. The whole pipeline shares one wall-clock deadline;
// exceeding it cancels the in-flight call and aborts the request.
//
// A log row may already be persisted when a later stage fails; partial
// effects are not rolled back and not reported separately.
func (a *Analyzer) Run(ctx context.Context, req *models.ScanRequest, notify func(Stage)) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if notify == nil {
		notify = func(Stage) {}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.log.Info("scan started", "folder", req.FolderPath, "barcode", req.Barcode)

	// OCR the source image and keep the result next to it.
	ocrText, err := a.extractor.ExtractText(ctx, a.blobs.ObjectURI(req.FolderPath, storage.SourceImage))
	if err != nil {
		return nil, err
	}
	if err := a.blobs.WriteText(ctx, req.FolderPath, storage.OCRResultBlob, ocrText); err != nil {
		return nil, err
	}
	notify(StageTextExtracted)

	profileText, err := a.blobs.ReadText(ctx, req.FolderPath, storage.ProfileBlob)
	if err != nil {
		return nil, err
	}
	notify(StageProfileLoaded)

	raw, err := a.engine.Evaluate(ctx, ocrText, profileText, req.Barcode)
	if err != nil {
		return nil, err
	}
	outcome := analysis.ParseResult(raw)
	if !outcome.Parsed() {
		a.log.Warn("evaluation did not parse as JSON, keeping raw text", "barcode", req.Barcode)
	}
	notify(StageEvaluated)

	logID, err := a.store.AppendScanLog(ctx, &models.ScanLog{
		UserID:         req.UserProfile.UID,
		Barcode:        req.Barcode,
		OCRText:        ocrText,
		AnalysisResult: outcome.Raw,
	})
	if err != nil {
		return nil, err
	}
	notify(StageLogAppended)

	if err := a.store.SaveUserIfAbsent(ctx, req.UserProfile); err != nil {
		return nil, err
	}
	notify(StageUserEnsured)

	if err := a.store.SaveProductIfAbsent(ctx, outcome, req.Barcode); err != nil {
		return nil, err
	}
	notify(StageProductEnsured)

	a.log.Info("scan completed", "barcode", req.Barcode, "log_id", logID, "structured", outcome.Parsed())
	notify(StageDone)

	return &Result{
		OCRText:     ocrText,
		ProfileText: profileText,
		AnalysisRaw: outcome.Raw,
	}, nil
}

// ExtractOnly runs OCR for a folder and stores the result text, without
// evaluation or persistence.
func (a *Analyzer) ExtractOnly(ctx context.Context, folder string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.extractor.ExtractText(ctx, a.blobs.ObjectURI(folder, storage.SourceImage))
	if err != nil {
		return "", err
	}
	if err := a.blobs.WriteText(ctx, folder, storage.OCRResultBlob, text); err != nil {
		return "", err
	}
	return text, nil
}

// History returns the most recent scan-log rows, newest first.
func (a *Analyzer) History(ctx context.Context, limit int) ([]*models.ScanLog, error) {
	return a.store.RecentScanLogs(ctx, limit)
}
