package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiview/adminrelay/internal/models"
)

func TestStructValid(t *testing.T) {
	form := models.AudienceForm{
		Property:               "properties/123",
		DisplayName:            "Returning visitors",
		Description:            "visited twice in 30 days",
		MembershipDurationDays: 30,
	}
	assert.Nil(t, Struct(form))
}

func TestStructCollectsEveryViolation(t *testing.T) {
	form := models.AudienceForm{
		Property:               "bogus",
		MembershipDurationDays: 900,
	}
	errs := Struct(form)
	require.NotNil(t, errs)

	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "Property")
	assert.Contains(t, fields, "DisplayName")
	assert.Contains(t, fields, "MembershipDurationDays")
}

func TestStructErrorMessageJoinsFieldPaths(t *testing.T) {
	errs := Struct(models.PropertyForm{Account: "accounts/abc"})
	require.NotNil(t, errs)

	msg := errs.Error()
	assert.True(t, strings.Contains(msg, "Account"), msg)
	assert.True(t, strings.Contains(msg, "; "), "multiple violations join with a separator")
}

func TestResourcePathTag(t *testing.T) {
	tests := []struct {
		name    string
		account string
		valid   bool
	}{
		{"well-formed", "accounts/123", true},
		{"wrong collection", "properties/123", false},
		{"trailing segment", "accounts/123/extra", false},
		{"non-numeric id", "accounts/abc", false},
		{"bare id", "123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := models.PropertyForm{
				Account:     tt.account,
				DisplayName: "Shop",
				TimeZone:    "UTC",
			}
			errs := Struct(form)
			if tt.valid {
				assert.Nil(t, errs)
			} else {
				require.NotNil(t, errs)
				assert.Equal(t, "Account", errs[0].Field)
			}
		})
	}
}

func TestConstraintMessages(t *testing.T) {
	errs := Struct(models.CustomMetricForm{
		Property:        "properties/123",
		ParameterName:   "p",
		DisplayName:     "m",
		MeasurementUnit: "FURLONGS",
		Scope:           "EVENT",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "MeasurementUnit", errs[0].Field)
	assert.Contains(t, errs[0].Message, "must be one of")
}
