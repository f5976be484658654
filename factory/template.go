/*
Package factory provides JSON to Go depreciation template conversion.

PURPOSE:
  Converts JSON template definitions into depreciation.Template values so
  accountants can define templates without code changes, and renders
  templates back to JSON for the API.

JSON SCHEMA:
  {
    "name": "Office Equipment 5Y",
    "method": "straight_line",
    "frequency": "monthly",
    "life": {"value": 5, "unit": "years"}
  }

  {
    "name": "Vehicles WDV",
    "method": "written_down_value",
    "frequency": "every_n_months",
    "frequency_months": 2,
    "life": {"value": 48, "unit": "months"},
    "rate_of_depreciation": "25"
  }

ACCEPTED VALUES:
  method     straight_line | double_declining_balance | written_down_value
             (the display names "Straight Line" etc. are accepted too)
  frequency  monthly | quarterly | half_yearly | yearly | every_n_months
  unit       months | years

  Field checks run through go-playground/validator; the result is then
  checked with Template.Validate, so a parsed template is always usable by
  the schedule builder.

USAGE:
  f := factory.NewTemplateFactory()
  t, err := f.ParseTemplate(jsonString)
  t, err = f.ParseTemplate(factory.StraightLineJSON("SL 3Y", 36))

SEE ALSO:
  - depreciation/template.go: Template type definition
  - api/handlers.go: POST /api/templates
  - api/scenarios.go: demo templates
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TemplateJSON is the JSON representation of a template.
type TemplateJSON struct {
	Name            string          `json:"name" validate:"required,max=140"`
	Method          string          `json:"method" validate:"required"`
	Frequency       string          `json:"frequency" validate:"required"`
	FrequencyMonths int             `json:"frequency_months,omitempty" validate:"gte=0,lte=120"`
	Life            LifeJSON        `json:"life"`
	Rate            decimal.Decimal `json:"rate_of_depreciation,omitzero"`
	DerivedFrom     string          `json:"derived_from,omitempty"`
}

// LifeJSON is the useful life of a template.
type LifeJSON struct {
	Value int    `json:"value" validate:"gt=0,lte=1200"`
	Unit  string `json:"unit" validate:"required,oneof=months years Months Years"`
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts JSON templates to Go structs.
type TemplateFactory struct {
	validate *validator.Validate
}

func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{validate: NewValidator()}
}

// ParseTemplate parses a JSON document into a Template.
func (f *TemplateFactory) ParseTemplate(jsonStr string) (depreciation.Template, error) {
	var tj TemplateJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return depreciation.Template{}, &depreciation.ValidationError{Field: "template", Message: "failed to parse template JSON: " + err.Error()}
	}
	return f.FromJSON(tj)
}

// ParseTemplates parses a JSON array of templates. The first invalid entry
// fails the whole batch.
func (f *TemplateFactory) ParseTemplates(jsonStr string) ([]depreciation.Template, error) {
	var list []TemplateJSON
	if err := json.Unmarshal([]byte(jsonStr), &list); err != nil {
		return nil, &depreciation.ValidationError{Field: "templates", Message: "failed to parse templates JSON: " + err.Error()}
	}
	out := make([]depreciation.Template, 0, len(list))
	for i, tj := range list {
		t, err := f.FromJSON(tj)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// FromJSON converts TemplateJSON to a validated Template.
func (f *TemplateFactory) FromJSON(tj TemplateJSON) (depreciation.Template, error) {
	if err := f.validate.Struct(tj); err != nil {
		return depreciation.Template{}, ToValidationError(err)
	}
	method, err := parseMethod(tj.Method)
	if err != nil {
		return depreciation.Template{}, err
	}
	frequency, err := parseFrequency(tj.Frequency)
	if err != nil {
		return depreciation.Template{}, err
	}

	t := depreciation.Template{
		Name:               strings.TrimSpace(tj.Name),
		Method:             method,
		Frequency:          frequency,
		AssetLife:          tj.Life.Value,
		LifeUnit:           parseLifeUnit(tj.Life.Unit),
		RateOfDepreciation: tj.Rate,
		DerivedFrom:        tj.DerivedFrom,
	}
	if frequency == depreciation.FrequencyEveryNMonths {
		t.FrequencyMonths = tj.FrequencyMonths
	}
	if err := t.Validate(); err != nil {
		return depreciation.Template{}, err
	}
	return t, nil
}

// ToJSON converts a Template to TemplateJSON.
func (f *TemplateFactory) ToJSON(t depreciation.Template) TemplateJSON {
	tj := TemplateJSON{
		Name:        t.Name,
		Method:      methodKeys[t.Method],
		Frequency:   frequencyKeys[t.Frequency],
		Life:        LifeJSON{Value: t.AssetLife, Unit: strings.ToLower(string(t.LifeUnit))},
		DerivedFrom: t.DerivedFrom,
	}
	if t.Frequency == depreciation.FrequencyEveryNMonths {
		tj.FrequencyMonths = t.FrequencyMonths
	}
	if t.Method == depreciation.MethodWrittenDownValue {
		tj.Rate = t.RateOfDepreciation
	}
	return tj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

var methodKeys = map[depreciation.Method]string{
	depreciation.MethodStraightLine:           "straight_line",
	depreciation.MethodDoubleDecliningBalance: "double_declining_balance",
	depreciation.MethodWrittenDownValue:       "written_down_value",
}

var frequencyKeys = map[depreciation.Frequency]string{
	depreciation.FrequencyMonthly:      "monthly",
	depreciation.FrequencyQuarterly:    "quarterly",
	depreciation.FrequencyHalfYearly:   "half_yearly",
	depreciation.FrequencyYearly:       "yearly",
	depreciation.FrequencyEveryNMonths: "every_n_months",
}

func parseMethod(s string) (depreciation.Method, error) {
	for m, key := range methodKeys {
		if s == key || s == string(m) {
			return m, nil
		}
	}
	return "", &depreciation.ValidationError{Field: "method", Message: fmt.Sprintf("unknown depreciation method %q", s)}
}

func parseFrequency(s string) (depreciation.Frequency, error) {
	for fr, key := range frequencyKeys {
		if s == key || s == string(fr) {
			return fr, nil
		}
	}
	return "", &depreciation.ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", s)}
}

func parseLifeUnit(s string) depreciation.LifeUnit {
	if strings.EqualFold(s, "years") {
		return depreciation.LifeYears
	}
	return depreciation.LifeMonths
}

// =============================================================================
// VALIDATION
// =============================================================================

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ToValidationError turns the first failed validator check into a
// *depreciation.ValidationError. Other errors pass through.
func ToValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	return &depreciation.ValidationError{Field: field, Message: validationMessage(fe)}
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "must be at most " + e.Param() + " characters"
		}
		return "must be at most " + e.Param()
	case "min":
		return "must be at least " + e.Param()
	}
	return "is invalid"
}

// =============================================================================
// PRESET TEMPLATES
// =============================================================================

// StraightLineJSON returns a monthly straight line template over months.
func StraightLineJSON(name string, months int) string {
	return fmt.Sprintf(`{
  "name": %q,
  "method": "straight_line",
  "frequency": "monthly",
  "life": {"value": %d, "unit": "months"}
}`, name, months)
}

// DoubleDecliningJSON returns a yearly double declining balance template.
func DoubleDecliningJSON(name string, years int) string {
	return fmt.Sprintf(`{
  "name": %q,
  "method": "double_declining_balance",
  "frequency": "yearly",
  "life": {"value": %d, "unit": "years"}
}`, name, years)
}

// WrittenDownValueJSON returns a written down value template with an
// annual rate in percent.
func WrittenDownValueJSON(name, frequency string, years int, rate string) string {
	return fmt.Sprintf(`{
  "name": %q,
  "method": "written_down_value",
  "frequency": %q,
  "life": {"value": %d, "unit": "years"},
  "rate_of_depreciation": %q
}`, name, frequency, years, rate)
}
