package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProposal marks a proposal that cannot be evaluated at all.
// It is distinct from an STP FAIL, which is a normal evaluation outcome.
var ErrInvalidProposal = errors.New("invalid proposal")

// Product types accepted by the engine.
const (
	ProductTermLife  = "term_life"
	ProductEndowment = "endowment"
	ProductULIP      = "ulip"
)

// Proposal is an incoming life-insurance proposal to be underwritten.
type Proposal struct {
	// Identifiers
	ProposalID  string `json:"proposal_id"`
	ProductCode string `json:"product_code"`
	ProductType string `json:"product_type"`

	// Demographics
	ApplicantAge    int      `json:"applicant_age"`
	ApplicantGender string   `json:"applicant_gender"`
	BMI             *float64 `json:"bmi,omitempty"`

	// Financials
	ApplicantIncome  float64 `json:"applicant_income"`
	SumAssured       float64 `json:"sum_assured"`
	Premium          float64 `json:"premium"`
	ExistingCoverage float64 `json:"existing_coverage"`

	// Risk factors
	OccupationCode *string `json:"occupation_code,omitempty"`
	OccupationRisk *string `json:"occupation_risk,omitempty"` // low, medium, high
	AgentCode      *string `json:"agent_code,omitempty"`
	AgentTier      *string `json:"agent_tier,omitempty"`
	Pincode        *string `json:"pincode,omitempty"`

	IsSmoker          bool `json:"is_smoker"`
	HasMedicalHistory bool `json:"has_medical_history"`

	// Only meaningful when IsSmoker is set
	CigarettesPerDay *int `json:"cigarettes_per_day,omitempty"`
	SmokingYears     *int `json:"smoking_years,omitempty"`

	// Only meaningful when HasMedicalHistory is set
	AilmentType          *string `json:"ailment_type,omitempty"`
	AilmentDetails       *string `json:"ailment_details,omitempty"`
	AilmentDurationYears *int    `json:"ailment_duration_years,omitempty"`
	IsAilmentOngoing     *bool   `json:"is_ailment_ongoing,omitempty"`
}

// Validate rejects proposals the engine cannot interpret.
func (p *Proposal) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: proposal is required", ErrInvalidProposal)
	}
	if strings.TrimSpace(p.ProposalID) == "" {
		return fmt.Errorf("%w: proposal_id is required", ErrInvalidProposal)
	}
	switch p.ProductType {
	case ProductTermLife, ProductEndowment, ProductULIP:
	default:
		return fmt.Errorf("%w: unsupported product_type %q", ErrInvalidProposal, p.ProductType)
	}
	if p.ApplicantAge < 0 {
		return fmt.Errorf("%w: applicant_age must not be negative", ErrInvalidProposal)
	}
	return nil
}

// Fields flattens the proposal into record form. Smoking and ailment fields
// are nil unless their gate flag is set.
func (p *Proposal) Fields() map[string]any {
	f := map[string]any{
		"proposal_id":         p.ProposalID,
		"product_code":        p.ProductCode,
		"product_type":        p.ProductType,
		"applicant_age":       float64(p.ApplicantAge),
		"applicant_gender":    p.ApplicantGender,
		"applicant_income":    p.ApplicantIncome,
		"sum_assured":         p.SumAssured,
		"premium":             p.Premium,
		"existing_coverage":   p.ExistingCoverage,
		"bmi":                 floatOrNil(p.BMI),
		"occupation_code":     stringOrNil(p.OccupationCode),
		"occupation_risk":     stringOrNil(p.OccupationRisk),
		"agent_code":          stringOrNil(p.AgentCode),
		"agent_tier":          stringOrNil(p.AgentTier),
		"pincode":             stringOrNil(p.Pincode),
		"is_smoker":           p.IsSmoker,
		"has_medical_history": p.HasMedicalHistory,
	}

	f["cigarettes_per_day"] = nil
	f["smoking_years"] = nil
	if p.IsSmoker {
		f["cigarettes_per_day"] = intOrNil(p.CigarettesPerDay)
		f["smoking_years"] = intOrNil(p.SmokingYears)
	}

	f["ailment_type"] = nil
	f["ailment_details"] = nil
	f["ailment_duration_years"] = nil
	f["is_ailment_ongoing"] = nil
	if p.HasMedicalHistory {
		f["ailment_type"] = stringOrNil(p.AilmentType)
		f["ailment_details"] = stringOrNil(p.AilmentDetails)
		f["ailment_duration_years"] = intOrNil(p.AilmentDurationYears)
		if p.IsAilmentOngoing != nil {
			f["is_ailment_ongoing"] = *p.IsAilmentOngoing
		}
	}

	return f
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return float64(*v)
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
