package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const proposalSchemaURL = "https://underwriter.schemas.local/proposal.schema.json"

// proposalSchema checks request shape only. Business constraints such as
// known product types live in Proposal.Validate.
const proposalSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["proposal_id", "product_type", "applicant_age", "sum_assured", "premium"],
  "properties": {
    "proposal_id": {"type": "string", "minLength": 1},
    "product_code": {"type": "string"},
    "product_type": {"type": "string"},
    "applicant_age": {"type": "integer"},
    "applicant_gender": {"type": "string"},
    "applicant_income": {"type": "number"},
    "sum_assured": {"type": "number", "minimum": 0},
    "premium": {"type": "number", "minimum": 0},
    "existing_coverage": {"type": "number", "minimum": 0},
    "bmi": {"type": ["number", "null"]},
    "occupation_code": {"type": ["string", "null"]},
    "occupation_risk": {"enum": ["low", "medium", "high", null]},
    "agent_code": {"type": ["string", "null"]},
    "agent_tier": {"type": ["string", "null"]},
    "pincode": {"type": ["string", "null"]},
    "is_smoker": {"type": "boolean"},
    "has_medical_history": {"type": "boolean"},
    "cigarettes_per_day": {"type": ["integer", "null"], "minimum": 0},
    "smoking_years": {"type": ["integer", "null"], "minimum": 0},
    "ailment_type": {"type": ["string", "null"]},
    "ailment_details": {"type": ["string", "null"]},
    "ailment_duration_years": {"type": ["integer", "null"], "minimum": 0},
    "is_ailment_ongoing": {"type": ["boolean", "null"]}
  }
}`

func compileProposalSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(proposalSchemaURL, strings.NewReader(proposalSchema)); err != nil {
		return nil, fmt.Errorf("proposal schema load failed: %w", err)
	}
	return c.Compile(proposalSchemaURL)
}

// validateAgainst decodes body generically and checks it against schema.
func validateAgainst(schema *jsonschema.Schema, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON request body: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return nil
}
