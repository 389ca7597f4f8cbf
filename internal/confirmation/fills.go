package confirmation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradeops/backend/internal/contracts"
)

// FillInput is one operator-reported fill before validation
type FillInput struct {
	Sequence          int              `json:"sequence"`
	Symbol            string           `json:"internal_symbol"`
	Side              string           `json:"side"`
	ExecutedStatus    string           `json:"executed_status"`
	ExecutedValueBase *decimal.Decimal `json:"executed_value_base,omitempty"`
	Units             *decimal.Decimal `json:"units,omitempty"`
	FillPrice         *decimal.Decimal `json:"fill_price,omitempty"`
	FilledAt          string           `json:"filled_at,omitempty"`
	Notes             string           `json:"notes,omitempty"`
}

const fillsSchemaURL = "https://tradeops.local/schemas/fills.schema.json"

// fillsSchema is the structural shape of a fills payload; value rules live in ValidateFills
const fillsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["fills"],
  "properties": {
    "fills": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["sequence", "internal_symbol", "side", "executed_status"],
        "properties": {
          "sequence": {"type": "integer", "minimum": 1},
          "internal_symbol": {"type": "string", "minLength": 1},
          "side": {"type": "string"},
          "executed_status": {"type": "string"},
          "executed_value_base": {"type": ["number", "string", "null"]},
          "units": {"type": ["number", "string", "null"]},
          "fill_price": {"type": ["number", "string", "null"]},
          "filled_at": {"type": ["string", "null"]},
          "notes": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(fillsSchemaURL, strings.NewReader(fillsSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to load fills schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(fillsSchemaURL)
	})
	return schema, schemaErr
}

// ParseFills decodes a fills payload: either a JSON list or an object with a top-level "fills" list
func ParseFills(data []byte) ([]FillInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		data = append(append([]byte(`{"fills":`), data...), '}')
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, invalid("fills", "invalid JSON: %v", err)
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, invalid("fills", "schema validation failed: %v", err)
	}

	var payload struct {
		Fills []FillInput `json:"fills"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, invalid("fills", "failed to decode: %v", err)
	}
	return payload.Fills, nil
}

// ValidateFills normalizes fills for ticketID and returns them sorted by sequence.
// Nothing is written when an error is returned.
func ValidateFills(ticketID string, in []FillInput) ([]contracts.ConfirmedFill, error) {
	out := make([]contracts.ConfirmedFill, 0, len(in))
	seen := make(map[int]struct{}, len(in))

	for i, f := range in {
		field := func(name string) string { return fmt.Sprintf("fills[%d].%s", i, name) }

		if f.Sequence < 1 {
			return nil, invalid(field("sequence"), "must be int >= 1")
		}
		if _, dup := seen[f.Sequence]; dup {
			return nil, invalid(field("sequence"), "duplicate sequence %d", f.Sequence)
		}
		seen[f.Sequence] = struct{}{}

		symbol := strings.TrimSpace(f.Symbol)
		if symbol == "" {
			return nil, invalid(field("internal_symbol"), "must be non-empty string")
		}
		side, ok := contracts.ParseSide(f.Side)
		if !ok {
			return nil, invalid(field("side"), "must be BUY or SELL")
		}
		status, ok := contracts.ParseExecutedStatus(f.ExecutedStatus)
		if !ok {
			return nil, invalid(field("executed_status"), "must be DONE|SKIPPED|FAILED|PARTIAL")
		}

		value := f.ExecutedValueBase
		if value == nil && f.Units != nil && f.FillPrice != nil {
			v := f.Units.Mul(*f.FillPrice)
			value = &v
		}
		if value != nil && value.IsNegative() {
			return nil, invalid(field("executed_value_base"), "must be >= 0 (store magnitude; side encodes direction)")
		}
		if f.Units != nil && f.Units.IsNegative() {
			return nil, invalid(field("units"), "must be >= 0")
		}
		if f.FillPrice != nil && f.FillPrice.IsNegative() {
			return nil, invalid(field("fill_price"), "must be >= 0")
		}

		var filledAt *time.Time
		if raw := strings.TrimSpace(f.FilledAt); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, invalid(field("filled_at"), "must be RFC 3339 datetime (got %q)", raw)
			}
			utc := t.UTC()
			filledAt = &utc
		}
		if status.Executed() && filledAt == nil {
			return nil, invalid(field("filled_at"), "required when executed_status is %s", status)
		}

		out = append(out, contracts.ConfirmedFill{
			TicketID:          ticketID,
			Sequence:          f.Sequence,
			Symbol:            symbol,
			Side:              side,
			ExecutedStatus:    status,
			Units:             f.Units,
			FillPrice:         f.FillPrice,
			ExecutedValueBase: value,
			FilledAt:          filledAt,
			Notes:             strings.TrimSpace(f.Notes),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}
