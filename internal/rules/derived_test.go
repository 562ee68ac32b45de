package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func TestDerivedFieldsDefaults(t *testing.T) {
	d, err := NewDerivedFields(domain.DefaultDerivedFields())
	require.NoError(t, err)
	assert.Equal(t, []string{"sa_income_multiple", "total_coverage"}, d.Names())

	p := &domain.Proposal{
		ProposalID:       "P-1",
		ProductType:      domain.ProductTermLife,
		ApplicantAge:     35,
		ApplicantIncome:  1000000,
		SumAssured:       12000000,
		ExistingCoverage: 3000000,
	}

	out := d.Apply(domain.NewRecord(p.Fields()))

	assert.Equal(t, 12.0, out.Get("sa_income_multiple"))
	assert.Equal(t, 15000000.0, out.Get("total_coverage"))
	assert.Equal(t, 35.0, out.Get("applicant_age"), "base fields are kept")
}

func TestDerivedFieldsZeroIncome(t *testing.T) {
	d, err := NewDerivedFields(domain.DefaultDerivedFields())
	require.NoError(t, err)

	p := &domain.Proposal{ProposalID: "P-2", ProductType: domain.ProductTermLife, SumAssured: 500000}
	out := d.Apply(domain.NewRecord(p.Fields()))

	assert.Equal(t, 0.0, out.Get("sa_income_multiple"))
}

func TestDerivedFieldsErrorYieldsNil(t *testing.T) {
	d, err := NewDerivedFields([]domain.DerivedField{
		{Name: "bmi_squared", Expression: "bmi * bmi"},
		{Name: "record_age", Expression: `record["applicant_age"]`},
	})
	require.NoError(t, err)

	p := &domain.Proposal{ProposalID: "P-3", ProductType: domain.ProductTermLife, ApplicantAge: 50}
	out := d.Apply(domain.NewRecord(p.Fields()))

	v, ok := out.Lookup("bmi_squared")
	assert.True(t, ok, "failed fields are still present")
	assert.Nil(t, v)
	assert.Equal(t, 50.0, out.Get("record_age"))
}

func TestDerivedFieldsNonScalarYieldsNil(t *testing.T) {
	d, err := NewDerivedFields([]domain.DerivedField{
		{Name: "pair", Expression: "[sum_assured, premium]"},
	})
	require.NoError(t, err)

	p := &domain.Proposal{ProposalID: "P-4", ProductType: domain.ProductTermLife}
	out := d.Apply(domain.NewRecord(p.Fields()))
	assert.Nil(t, out.Get("pair"))
}

func TestDerivedFieldsRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []domain.DerivedField
	}{
		{"missing name", []domain.DerivedField{{Expression: "1.0"}}},
		{"shadows base field", []domain.DerivedField{{Name: "sum_assured", Expression: "1.0"}}},
		{"duplicate", []domain.DerivedField{{Name: "x", Expression: "1.0"}, {Name: "x", Expression: "2.0"}}},
		{"syntax error", []domain.DerivedField{{Name: "x", Expression: "sum_assured +"}}},
		{"unknown variable", []domain.DerivedField{{Name: "x", Expression: "no_such_field > 1.0"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDerivedFields(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestDerivedFieldsNilIsNoop(t *testing.T) {
	var d *DerivedFields
	r := domain.NewRecord(map[string]any{"a": 1.0})

	assert.Equal(t, r.Fields(), d.Apply(r).Fields())
	assert.Nil(t, d.Names())
}

func TestDerivedFieldsUsableInRules(t *testing.T) {
	d, err := NewDerivedFields(domain.DefaultDerivedFields())
	require.NoError(t, err)

	p := &domain.Proposal{
		ProposalID:      "P-5",
		ProductType:     domain.ProductTermLife,
		ApplicantIncome: 500000,
		SumAssured:      15000000,
	}
	r := d.Apply(domain.NewRecord(p.Fields()))

	multiple := rule("sa-multiple", "", 1,
		domain.RuleAction{Decision: "FAIL", ReasonCode: "INC01"},
		cond("sa_income_multiple", domain.OpGreaterThan, 25),
	)

	out := newTestPipeline().Execute(r, domain.ProductTermLife, []*domain.DecisionRule{multiple}, nil)
	assert.Equal(t, domain.DecisionFail, out.Decision)
	assert.Equal(t, 30.0, out.RuleTrace[0].InputValues["sa_income_multiple"])
}
