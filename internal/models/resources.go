// Package models defines the resource descriptors and response shapes used by
// the bulk mutation engine and the inbound API.
package models

import "fmt"

// Operation identifies the mutation kind for a batch.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Feature names used by the quota ledger. One feature per resource type.
const (
	FeatureAccount        = "account"
	FeatureProperty       = "property"
	FeatureDataStream     = "datastream"
	FeatureAudience       = "audience"
	FeatureCustomMetric   = "custommetric"
	FeatureKeyEvent       = "keyevent"
	FeatureAdvertiserLink = "advertiserlink"
)

// AccountForm describes one account-level mutation target.
type AccountForm struct {
	// Name is the remote resource path ("accounts/123"). Required for
	// update/delete, ignored for create.
	Name        string `json:"name,omitempty" validate:"omitempty,respath=accounts"`
	DisplayName string `json:"displayName" validate:"required,min=1,max=100"`
	RegionCode  string `json:"regionCode,omitempty" validate:"omitempty,len=2"`
}

// PropertyForm describes one property mutation target.
type PropertyForm struct {
	Name             string `json:"name,omitempty" validate:"omitempty,respath=properties"`
	Account          string `json:"account" validate:"required,respath=accounts"`
	DisplayName      string `json:"displayName" validate:"required,min=1,max=100"`
	TimeZone         string `json:"timeZone" validate:"required"`
	CurrencyCode     string `json:"currencyCode,omitempty" validate:"omitempty,len=3"`
	IndustryCategory string `json:"industryCategory,omitempty"`
}

// StreamType discriminates the data-stream payload variants.
type StreamType string

const (
	StreamTypeWeb        StreamType = "WEB_DATA_STREAM"
	StreamTypeAndroidApp StreamType = "ANDROID_APP_DATA_STREAM"
	StreamTypeIosApp     StreamType = "IOS_APP_DATA_STREAM"
)

// WebStreamData is the payload for WEB_DATA_STREAM.
type WebStreamData struct {
	DefaultURI string `json:"defaultUri" validate:"required,url"`
}

// AndroidAppStreamData is the payload for ANDROID_APP_DATA_STREAM.
type AndroidAppStreamData struct {
	PackageName string `json:"packageName" validate:"required"`
}

// IosAppStreamData is the payload for IOS_APP_DATA_STREAM.
type IosAppStreamData struct {
	BundleID string `json:"bundleId" validate:"required"`
}

// DataStreamForm describes one data-stream mutation target. Exactly one of the
// typed payloads must be set, and it must match Type.
type DataStreamForm struct {
	Name        string     `json:"name,omitempty"`
	Property    string     `json:"property" validate:"required,respath=properties"`
	DisplayName string     `json:"displayName" validate:"required,min=1,max=255"`
	Type        StreamType `json:"type" validate:"required,oneof=WEB_DATA_STREAM ANDROID_APP_DATA_STREAM IOS_APP_DATA_STREAM"`

	WebStreamData        *WebStreamData        `json:"webStreamData,omitempty"`
	AndroidAppStreamData *AndroidAppStreamData `json:"androidAppStreamData,omitempty"`
	IosAppStreamData     *IosAppStreamData     `json:"iosAppStreamData,omitempty"`
}

// StreamPayload returns the variant payload matching Type, or an error when the
// form carries no payload or the wrong one. The switch is exhaustive over
// StreamType so new variants fail loudly here rather than at request-build time.
func (f *DataStreamForm) StreamPayload() (any, error) {
	switch f.Type {
	case StreamTypeWeb:
		if f.WebStreamData == nil {
			return nil, fmt.Errorf("webStreamData is required for %s", f.Type)
		}
		return f.WebStreamData, nil
	case StreamTypeAndroidApp:
		if f.AndroidAppStreamData == nil {
			return nil, fmt.Errorf("androidAppStreamData is required for %s", f.Type)
		}
		return f.AndroidAppStreamData, nil
	case StreamTypeIosApp:
		if f.IosAppStreamData == nil {
			return nil, fmt.Errorf("iosAppStreamData is required for %s", f.Type)
		}
		return f.IosAppStreamData, nil
	default:
		return nil, fmt.Errorf("unknown stream type %q", f.Type)
	}
}

// AudienceFilterClause is one clause of an audience definition.
type AudienceFilterClause struct {
	ClauseType  string `json:"clauseType" validate:"required,oneof=INCLUDE EXCLUDE"`
	FieldName   string `json:"fieldName" validate:"required"`
	StringValue string `json:"stringValue,omitempty"`
}

// AudienceForm describes one audience mutation target.
type AudienceForm struct {
	Name                   string                 `json:"name,omitempty"`
	Property               string                 `json:"property" validate:"required,respath=properties"`
	DisplayName            string                 `json:"displayName" validate:"required,min=1,max=255"`
	Description            string                 `json:"description" validate:"required,max=256"`
	MembershipDurationDays int                    `json:"membershipDurationDays" validate:"required,min=1,max=540"`
	FilterClauses          []AudienceFilterClause `json:"filterClauses" validate:"omitempty,dive"`
}

// MeasurementUnit values accepted for custom metrics.
const (
	UnitStandard     = "STANDARD"
	UnitCurrency     = "CURRENCY"
	UnitFeet         = "FEET"
	UnitMeters       = "METERS"
	UnitKilometers   = "KILOMETERS"
	UnitMiles        = "MILES"
	UnitMilliseconds = "MILLISECONDS"
	UnitSeconds      = "SECONDS"
	UnitMinutes      = "MINUTES"
	UnitHours        = "HOURS"
)

// CustomMetricForm describes one custom-metric mutation target.
type CustomMetricForm struct {
	Name            string `json:"name,omitempty"`
	Property        string `json:"property" validate:"required,respath=properties"`
	ParameterName   string `json:"parameterName" validate:"required,max=40"`
	DisplayName     string `json:"displayName" validate:"required,min=1,max=82"`
	Description     string `json:"description,omitempty" validate:"max=150"`
	MeasurementUnit string `json:"measurementUnit" validate:"required,oneof=STANDARD CURRENCY FEET METERS KILOMETERS MILES MILLISECONDS SECONDS MINUTES HOURS"`
	Scope           string `json:"scope" validate:"required,oneof=EVENT"`
}

// KeyEventForm describes one key-event mutation target.
type KeyEventForm struct {
	Name           string `json:"name,omitempty"`
	Property       string `json:"property" validate:"required,respath=properties"`
	EventName      string `json:"eventName" validate:"required,max=120"`
	CountingMethod string `json:"countingMethod" validate:"required,oneof=ONCE_PER_EVENT ONCE_PER_SESSION"`
}

// AdvertiserLinkForm describes one advertiser-link mutation target.
type AdvertiserLinkForm struct {
	Name                       string `json:"name,omitempty"`
	Property                   string `json:"property" validate:"required,respath=properties"`
	AdvertiserID               string `json:"advertiserId" validate:"required,numeric"`
	AdsPersonalizationEnabled  bool   `json:"adsPersonalizationEnabled"`
	CampaignDataSharingEnabled bool   `json:"campaignDataSharingEnabled"`
	CostDataSharingEnabled     bool   `json:"costDataSharingEnabled"`
}
