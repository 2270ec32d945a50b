package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cosmescan/backend/internal/errs"
)

// StringList accepts a JSON string, an array of strings, or null. A bare
// string decodes to a singleton list and null to an empty list, so persisted
// array columns never carry a JSON null.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*l = StringList{}
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = StringList{single}
	return nil
}

// Normalized returns the list with a non-nil backing slice.
func (l StringList) Normalized() []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}

// UserProfile is the caller-supplied skin profile. It is immutable once
// received; persistence maps it onto array-typed columns.
type UserProfile struct {
	UID                string     `json:"uid"`
	BirthDate          string     `json:"birth_date,omitempty"`
	Gender             string     `json:"gender,omitempty"`
	SkinType           string     `json:"skin_type,omitempty"`
	SkinProblems       StringList `json:"skin_problems"`
	IngredientsToAvoid StringList `json:"ingredients_to_avoid"`
	DesiredEffect      StringList `json:"desired_effect"`
	Note               string     `json:"note,omitempty"`
}

// BirthDateOnly returns the date portion of BirthDate, which callers may
// send as a full timestamp.
func (p *UserProfile) BirthDateOnly() string {
	if len(p.BirthDate) > 10 {
		return p.BirthDate[:10]
	}
	return p.BirthDate
}

// ScanRequest is one inbound analysis request. It is ephemeral and never
// persisted as-is.
type ScanRequest struct {
	FolderPath  string       `json:"folder_path"`
	Barcode     string       `json:"barcode"`
	UserProfile *UserProfile `json:"user_profile"`
}

// Validate reports the first missing required field. No pipeline stage runs
// when this fails.
func (r *ScanRequest) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: empty request body", errs.ErrValidation)
	case strings.TrimSpace(r.FolderPath) == "":
		return fmt.Errorf("%w: folder_path is required", errs.ErrValidation)
	case strings.TrimSpace(r.Barcode) == "":
		return fmt.Errorf("%w: barcode is required", errs.ErrValidation)
	case r.UserProfile == nil:
		return fmt.Errorf("%w: user_profile is required", errs.ErrValidation)
	case strings.TrimSpace(r.UserProfile.UID) == "":
		return fmt.Errorf("%w: user_profile.uid is required", errs.ErrValidation)
	}
	return nil
}

// Ingredient ratings emitted by the model, as instructed by the prompt.
const (
	RatingGood       = "良好"
	RatingCaution    = "やや注意"
	RatingUnsuitable = "不適合"
)

// Ingredient is one analyzed ingredient of the scanned product.
type Ingredient struct {
	Name   string `json:"name"`
	Rating string `json:"rating"`
	Effect string `json:"effect"`
}

// AnalysisResult is the structured evaluation the model is asked to return.
// Every field is optional; the model may omit any of them.
type AnalysisResult struct {
	ProductName       string       `json:"product_name,omitempty"`
	CompanyName       string       `json:"company_name,omitempty"`
	Category          string       `json:"category,omitempty"`
	PriceWithoutTax   int64        `json:"price_infered_without_tax_yen,omitempty"`
	IsCosme           bool         `json:"is_cosme"`
	AnalysisType      string       `json:"analysis_type,omitempty"`
	Ingredients       []Ingredient `json:"ingredients,omitempty"`
	OverallScore      int          `json:"overall_score,omitempty"`
	OverallAssessment string       `json:"overall_assessment,omitempty"`
}

// IngredientNames projects the ingredient list into its names, preserving
// order.
func (r *AnalysisResult) IngredientNames() []string {
	names := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		names = append(names, ing.Name)
	}
	return names
}

// ScanLog is one append-only scan-log row. ID is assigned at write time and
// rows are never mutated afterwards.
type ScanLog struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	Barcode        string    `json:"barcode"`
	OCRText        string    `json:"ocr_text"`
	AnalysisResult string    `json:"analysis_result"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
