package factory

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
)

func TestParseTemplate_Presets(t *testing.T) {
	f := NewTemplateFactory()

	sl, err := f.ParseTemplate(StraightLineJSON("SL 3Y", 36))
	require.NoError(t, err)
	assert.Equal(t, depreciation.Template{
		Name: "SL 3Y", Method: depreciation.MethodStraightLine, Frequency: depreciation.FrequencyMonthly,
		AssetLife: 36, LifeUnit: depreciation.LifeMonths,
	}, sl)

	ddb, err := f.ParseTemplate(DoubleDecliningJSON("DDB 5Y", 5))
	require.NoError(t, err)
	assert.Equal(t, depreciation.MethodDoubleDecliningBalance, ddb.Method)
	assert.Equal(t, 60, ddb.LifeMonths())

	wdv, err := f.ParseTemplate(WrittenDownValueJSON("WDV Vehicles", "quarterly", 4, "25"))
	require.NoError(t, err)
	assert.Equal(t, depreciation.FrequencyQuarterly, wdv.Frequency)
	assert.True(t, decimal.NewFromInt(25).Equal(wdv.RateOfDepreciation))
}

func TestParseTemplate_DisplayNamesAndEveryNMonths(t *testing.T) {
	// GIVEN: A template using display names and a two-monthly frequency
	// WHEN: It is parsed
	// THEN: The frequency months are kept

	f := NewTemplateFactory()
	got, err := f.ParseTemplate(`{
		"name": "  Tooling  ",
		"method": "Straight Line",
		"frequency": "every_n_months",
		"frequency_months": 2,
		"life": {"value": 2, "unit": "Years"}
	}`)
	require.NoError(t, err)
	assert.Equal(t, "Tooling", got.Name)
	assert.Equal(t, depreciation.FrequencyEveryNMonths, got.Frequency)
	assert.Equal(t, 2, got.PeriodMonths())
	assert.Equal(t, depreciation.LifeYears, got.LifeUnit)
}

func TestParseTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		field string
		// template errors carry no field
		template bool
	}{
		{"malformed", `{"name": `, "template", false},
		{"missing name", `{"method":"straight_line","frequency":"monthly","life":{"value":12,"unit":"months"}}`, "name", false},
		{"zero life", `{"name":"x","method":"straight_line","frequency":"monthly","life":{"value":0,"unit":"months"}}`, "life.value", false},
		{"bad unit", `{"name":"x","method":"straight_line","frequency":"monthly","life":{"value":3,"unit":"weeks"}}`, "life.unit", false},
		{"unknown method", `{"name":"x","method":"sum_of_years","frequency":"monthly","life":{"value":3,"unit":"years"}}`, "method", false},
		{"unknown frequency", `{"name":"x","method":"straight_line","frequency":"weekly","life":{"value":3,"unit":"years"}}`, "frequency", false},
		{"every n months without n", `{"name":"x","method":"straight_line","frequency":"every_n_months","life":{"value":3,"unit":"years"}}`, "", true},
		{"wdv without rate", `{"name":"x","method":"written_down_value","frequency":"yearly","life":{"value":3,"unit":"years"}}`, "", true},
	}

	f := NewTemplateFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseTemplate(tt.json)
			require.Error(t, err)
			if tt.template {
				assert.ErrorIs(t, err, depreciation.ErrInvalidTemplateConfiguration)
				return
			}
			var ve *depreciation.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, depreciation.ErrValidation)
		})
	}
}

func TestParseTemplates(t *testing.T) {
	f := NewTemplateFactory()

	list, err := f.ParseTemplates(`[` + StraightLineJSON("SL 12M", 12) + `,` + DoubleDecliningJSON("DDB 5Y", 5) + `]`)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "DDB 5Y", list[1].Name)

	_, err = f.ParseTemplates(`[` + StraightLineJSON("SL 12M", 12) + `, {"name": "broken"}]`)
	assert.ErrorIs(t, err, depreciation.ErrValidation)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := NewTemplateFactory()
	original := depreciation.Template{
		Name: "WDV 2M", Method: depreciation.MethodWrittenDownValue, Frequency: depreciation.FrequencyEveryNMonths,
		FrequencyMonths: 2, AssetLife: 4, LifeUnit: depreciation.LifeYears,
		RateOfDepreciation: decimal.NewFromInt(30), DerivedFrom: "WDV",
	}

	tj := f.ToJSON(original)
	assert.Equal(t, "written_down_value", tj.Method)
	assert.Equal(t, "every_n_months", tj.Frequency)
	assert.Equal(t, LifeJSON{Value: 4, Unit: "years"}, tj.Life)

	back, err := f.FromJSON(tj)
	require.NoError(t, err)
	assert.Equal(t, original.Name, back.Name)
	assert.Equal(t, original.FrequencyMonths, back.FrequencyMonths)
	assert.True(t, original.RateOfDepreciation.Equal(back.RateOfDepreciation))
	assert.Equal(t, original.DerivedFrom, back.DerivedFrom)
}
