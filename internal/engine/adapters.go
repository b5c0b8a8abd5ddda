package engine

import (
	"errors"
	"fmt"

	"github.com/optiview/adminrelay/internal/models"
	"github.com/optiview/adminrelay/internal/validate"
)

// errNameRequired is the shared update/delete precondition failure.
var errNameRequired = errors.New("name is required for update and delete")

// structThenOp runs declared-constraint validation first, then the per-op
// name precondition shared by every resource type.
func structThenOp(op models.Operation, form any, name string) error {
	// Deletes are addressed by remote name alone; the create/update field
	// constraints do not apply.
	if op == models.OpDelete {
		if name == "" {
			return errNameRequired
		}
		return nil
	}
	if fe := validate.Struct(form); fe != nil {
		return fe
	}
	if op == models.OpUpdate && name == "" {
		return errNameRequired
	}
	return nil
}

// childKey builds the duplicate-detection identity of a property-scoped
// resource: the remote name when known, otherwise parent plus display name.
func childKey(name, parent, displayName string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s - %s", parent, displayName)
}

// Accounts adapts account mutations to the engine.
type Accounts struct{}

func (Accounts) Resource() string    { return "accounts" }
func (Accounts) Feature() string     { return models.FeatureAccount }
func (Accounts) ViewPaths() []string { return []string{"/accounts"} }

func (Accounts) NaturalKey(op models.Operation, f models.AccountForm) string {
	if op == models.OpCreate {
		return f.DisplayName
	}
	return f.Name
}

func (Accounts) Label(f models.AccountForm) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

func (Accounts) Validate(op models.Operation, f models.AccountForm) error {
	return structThenOp(op, f, f.Name)
}

func (Accounts) CreatePath(models.AccountForm) string      { return "accounts" }
func (Accounts) RemoteName(f models.AccountForm) string    { return f.Name }
func (Accounts) UpdateMask(f models.AccountForm) []string {
	mask := []string{"displayName"}
	if f.RegionCode != "" {
		mask = append(mask, "regionCode")
	}
	return mask
}

func (Accounts) Body(op models.Operation, f models.AccountForm) (any, error) {
	return map[string]any{
		"displayName": f.DisplayName,
		"regionCode":  f.RegionCode,
	}, nil
}

// Properties adapts property mutations to the engine.
type Properties struct{}

func (Properties) Resource() string    { return "properties" }
func (Properties) Feature() string     { return models.FeatureProperty }
func (Properties) ViewPaths() []string { return []string{"/properties"} }

func (Properties) NaturalKey(op models.Operation, f models.PropertyForm) string {
	if op == models.OpCreate {
		return fmt.Sprintf("%s - %s", f.Account, f.DisplayName)
	}
	return f.Name
}

func (Properties) Label(f models.PropertyForm) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

func (Properties) Validate(op models.Operation, f models.PropertyForm) error {
	return structThenOp(op, f, f.Name)
}

func (Properties) CreatePath(models.PropertyForm) string   { return "properties" }
func (Properties) RemoteName(f models.PropertyForm) string { return f.Name }
func (Properties) UpdateMask(f models.PropertyForm) []string {
	mask := []string{"displayName", "timeZone"}
	if f.CurrencyCode != "" {
		mask = append(mask, "currencyCode")
	}
	if f.IndustryCategory != "" {
		mask = append(mask, "industryCategory")
	}
	return mask
}

func (Properties) Body(op models.Operation, f models.PropertyForm) (any, error) {
	body := map[string]any{
		"displayName":  f.DisplayName,
		"timeZone":     f.TimeZone,
		"currencyCode": f.CurrencyCode,
	}
	if f.IndustryCategory != "" {
		body["industryCategory"] = f.IndustryCategory
	}
	if op == models.OpCreate {
		body["parent"] = f.Account
	}
	return body, nil
}

// DataStreams adapts data-stream mutations to the engine. The stream payload
// is a tagged union resolved exhaustively by the form itself.
type DataStreams struct{}

func (DataStreams) Resource() string    { return "datastreams" }
func (DataStreams) Feature() string     { return models.FeatureDataStream }
func (DataStreams) ViewPaths() []string { return []string{"/properties", "/datastreams"} }

func (DataStreams) NaturalKey(op models.Operation, f models.DataStreamForm) string {
	if op == models.OpCreate {
		return fmt.Sprintf("%s - %s", f.Property, f.DisplayName)
	}
	return childKey(f.Name, f.Property, f.DisplayName)
}

func (DataStreams) Label(f models.DataStreamForm) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

func (DataStreams) Validate(op models.Operation, f models.DataStreamForm) error {
	if err := structThenOp(op, f, f.Name); err != nil {
		return err
	}
	if op == models.OpDelete {
		return nil
	}
	payload, err := f.StreamPayload()
	if err != nil {
		return err
	}
	if fe := validate.Struct(payload); fe != nil {
		return fe
	}
	return nil
}

func (DataStreams) CreatePath(f models.DataStreamForm) string {
	return f.Property + "/dataStreams"
}
func (DataStreams) RemoteName(f models.DataStreamForm) string { return f.Name }

func (DataStreams) UpdateMask(f models.DataStreamForm) []string {
	mask := []string{"displayName"}
	switch f.Type {
	case models.StreamTypeWeb:
		mask = append(mask, "webStreamData.defaultUri")
	case models.StreamTypeAndroidApp:
		mask = append(mask, "androidAppStreamData.packageName")
	case models.StreamTypeIosApp:
		mask = append(mask, "iosAppStreamData.bundleId")
	}
	return mask
}

func (DataStreams) Body(op models.Operation, f models.DataStreamForm) (any, error) {
	payload, err := f.StreamPayload()
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"displayName": f.DisplayName,
		"type":        f.Type,
	}
	switch f.Type {
	case models.StreamTypeWeb:
		body["webStreamData"] = payload
	case models.StreamTypeAndroidApp:
		body["androidAppStreamData"] = payload
	case models.StreamTypeIosApp:
		body["iosAppStreamData"] = payload
	}
	return body, nil
}

// Audiences adapts audience mutations to the engine.
type Audiences struct{}

func (Audiences) Resource() string    { return "audiences" }
func (Audiences) Feature() string     { return models.FeatureAudience }
func (Audiences) ViewPaths() []string { return []string{"/audiences"} }

func (Audiences) NaturalKey(op models.Operation, f models.AudienceForm) string {
	if op == models.OpCreate {
		return fmt.Sprintf("%s - %s", f.Property, f.DisplayName)
	}
	return childKey(f.Name, f.Property, f.DisplayName)
}

func (Audiences) Label(f models.AudienceForm) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

func (Audiences) Validate(op models.Operation, f models.AudienceForm) error {
	return structThenOp(op, f, f.Name)
}

func (Audiences) CreatePath(f models.AudienceForm) string {
	return f.Property + "/audiences"
}
func (Audiences) RemoteName(f models.AudienceForm) string { return f.Name }

func (Audiences) UpdateMask(f models.AudienceForm) []string {
	return []string{"displayName", "description", "membershipDurationDays"}
}

func (Audiences) Body(op models.Operation, f models.AudienceForm) (any, error) {
	body := map[string]any{
		"displayName":            f.DisplayName,
		"description":            f.Description,
		"membershipDurationDays": f.MembershipDurationDays,
	}
	if len(f.FilterClauses) > 0 {
		body["filterClauses"] = f.FilterClauses
	}
	return body, nil
}

// CustomMetrics adapts custom-metric mutations to the engine.
type CustomMetrics struct{}

func (CustomMetrics) Resource() string    { return "custommetrics" }
func (CustomMetrics) Feature() string     { return models.FeatureCustomMetric }
func (CustomMetrics) ViewPaths() []string { return []string{"/custommetrics"} }

func (CustomMetrics) NaturalKey(op models.Operation, f models.CustomMetricForm) string {
	if op == models.OpCreate {
		return fmt.Sprintf("%s - %s", f.Property, f.ParameterName)
	}
	return childKey(f.Name, f.Property, f.ParameterName)
}

func (CustomMetrics) Label(f models.CustomMetricForm) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

func (CustomMetrics) Validate(op models.Operation, f models.CustomMetricForm) error {
	return structThenOp(op, f, f.Name)
}

func (CustomMetrics) CreatePath(f models.CustomMetricForm) string {
	return f.Property + "/customMetrics"
}
func (CustomMetrics) RemoteName(f models.CustomMetricForm) string { return f.Name }

func (CustomMetrics) UpdateMask(f models.CustomMetricForm) []string {
	mask := []string{"displayName", "measurementUnit"}
	if f.Description != "" {
		mask = append(mask, "description")
	}
	return mask
}

func (CustomMetrics) Body(op models.Operation, f models.CustomMetricForm) (any, error) {
	body := map[string]any{
		"displayName":     f.DisplayName,
		"measurementUnit": f.MeasurementUnit,
		"scope":           f.Scope,
	}
	if f.Description != "" {
		body["description"] = f.Description
	}
	if op == models.OpCreate {
		body["parameterName"] = f.ParameterName
	}
	return body, nil
}

// KeyEvents adapts key-event mutations to the engine.
type KeyEvents struct{}

func (KeyEvents) Resource() string    { return "keyevents" }
func (KeyEvents) Feature() string     { return models.FeatureKeyEvent }
func (KeyEvents) ViewPaths() []string { return []string{"/keyevents"} }

func (KeyEvents) NaturalKey(op models.Operation, f models.KeyEventForm) string {
	if op == models.OpCreate {
		return fmt.Sprintf("%s - %s", f.Property, f.EventName)
	}
	return childKey(f.Name, f.Property, f.EventName)
}

func (KeyEvents) Label(f models.KeyEventForm) string {
	if f.EventName != "" {
		return f.EventName
	}
	return f.Name
}

func (KeyEvents) Validate(op models.Operation, f models.KeyEventForm) error {
	return structThenOp(op, f, f.Name)
}

func (KeyEvents) CreatePath(f models.KeyEventForm) string {
	return f.Property + "/keyEvents"
}
func (KeyEvents) RemoteName(f models.KeyEventForm) string { return f.Name }

func (KeyEvents) UpdateMask(f models.KeyEventForm) []string {
	return []string{"countingMethod"}
}

func (KeyEvents) Body(op models.Operation, f models.KeyEventForm) (any, error) {
	body := map[string]any{
		"countingMethod": f.CountingMethod,
	}
	if op == models.OpCreate {
		body["eventName"] = f.EventName
	}
	return body, nil
}

// AdvertiserLinks adapts advertiser-link mutations to the engine.
type AdvertiserLinks struct{}

func (AdvertiserLinks) Resource() string    { return "advertiserlinks" }
func (AdvertiserLinks) Feature() string     { return models.FeatureAdvertiserLink }
func (AdvertiserLinks) ViewPaths() []string { return []string{"/advertiserlinks"} }

func (AdvertiserLinks) NaturalKey(op models.Operation, f models.AdvertiserLinkForm) string {
	if op == models.OpCreate {
		return fmt.Sprintf("%s - %s", f.Property, f.AdvertiserID)
	}
	return childKey(f.Name, f.Property, f.AdvertiserID)
}

func (AdvertiserLinks) Label(f models.AdvertiserLinkForm) string {
	if f.AdvertiserID != "" {
		return f.AdvertiserID
	}
	return f.Name
}

func (AdvertiserLinks) Validate(op models.Operation, f models.AdvertiserLinkForm) error {
	return structThenOp(op, f, f.Name)
}

func (AdvertiserLinks) CreatePath(f models.AdvertiserLinkForm) string {
	return f.Property + "/advertiserLinks"
}
func (AdvertiserLinks) RemoteName(f models.AdvertiserLinkForm) string { return f.Name }

func (AdvertiserLinks) UpdateMask(f models.AdvertiserLinkForm) []string {
	return []string{"adsPersonalizationEnabled", "campaignDataSharingEnabled", "costDataSharingEnabled"}
}

func (AdvertiserLinks) Body(op models.Operation, f models.AdvertiserLinkForm) (any, error) {
	body := map[string]any{
		"adsPersonalizationEnabled":  f.AdsPersonalizationEnabled,
		"campaignDataSharingEnabled": f.CampaignDataSharingEnabled,
		"costDataSharingEnabled":     f.CostDataSharingEnabled,
	}
	if op == models.OpCreate {
		body["advertiserId"] = f.AdvertiserID
	}
	return body, nil
}
