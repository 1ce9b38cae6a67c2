package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser        Role = "user"
	RoleOrgMember   Role = "org_member"
	RoleOrgAdmin    Role = "org_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Principal identifies the authenticated dashboard user. It is extracted
// from a token issued by the external auth service; this service never
// issues credentials itself.
type Principal struct {
	UserID         string
	Role           Role
	TenantID       string
	OrganizationID string
}

type OrganizationAccess string

const (
	AccessPersonal     OrganizationAccess = "personal"
	AccessOrganization OrganizationAccess = "organization"
	AccessSystem       OrganizationAccess = "system"
)

type PeriodType string

const (
	PeriodAnnual    PeriodType = "annual"
	PeriodQuarterly PeriodType = "quarterly"
)

func ParsePeriodType(value string) (PeriodType, bool) {
	switch PeriodType(strings.ToLower(strings.TrimSpace(value))) {
	case PeriodAnnual:
		return PeriodAnnual, true
	case PeriodQuarterly:
		return PeriodQuarterly, true
	default:
		return "", false
	}
}

// DataFilter is the scope the dashboard is currently displaying,
// independent of what is cached.
type DataFilter string

const (
	FilterPersonal     DataFilter = "personal"
	FilterOrganization DataFilter = "organization"
	FilterAll          DataFilter = "all"
	FilterSystem       DataFilter = "system"
)

func ParseDataFilter(value string) (DataFilter, bool) {
	switch DataFilter(strings.ToLower(strings.TrimSpace(value))) {
	case FilterPersonal:
		return FilterPersonal, true
	case FilterOrganization:
		return FilterOrganization, true
	case FilterAll:
		return FilterAll, true
	case FilterSystem:
		return FilterSystem, true
	default:
		return "", false
	}
}

// DefaultFilterForRole is the scope shown before the user picks one.
func DefaultFilterForRole(role Role) DataFilter {
	switch role {
	case RoleSuperAdmin:
		return FilterSystem
	case RoleTenantAdmin, RoleOrgAdmin, RoleOrgMember:
		return FilterOrganization
	case RoleUser:
		return FilterPersonal
	default:
		return FilterPersonal
	}
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Prediction is a single default-risk assessment for one company and
// reporting period. The financial metrics are opaque to this service; the
// platform's models own their meaning.
type Prediction struct {
	ID               string             `json:"id"`
	CompanyID        string             `json:"company_id"`
	CompanySymbol    string             `json:"company_symbol"`
	CompanyName      string             `json:"company_name"`
	Sector           string             `json:"sector,omitempty"`
	ReportingYear    string             `json:"reporting_year"`
	ReportingQuarter string             `json:"reporting_quarter,omitempty"`
	Metrics          map[string]float64 `json:"financial_metrics,omitempty"`

	// Annual predictions carry a single probability; quarterly ones carry
	// up to three model outputs. Probability, when set, overrides them all.
	Probability          *float64 `json:"probability,omitempty"`
	PrimaryProbability   *float64 `json:"primary_probability,omitempty"`
	SecondaryProbability *float64 `json:"secondary_probability,omitempty"`
	EnsembleProbability  *float64 `json:"ensemble_probability,omitempty"`

	RiskLevel  RiskLevel `json:"risk_level"`
	Confidence float64   `json:"confidence"`

	OrganizationAccess OrganizationAccess `json:"organization_access"`
	OrganizationID     string             `json:"organization_id,omitempty"`
	CreatedBy          string             `json:"created_by"`
	CreatedAt          time.Time          `json:"created_at"`
}

// ProbabilityOf returns the first defined probability in override, primary,
// secondary, ensemble order, defaulting to 0. One accessor covers both the
// annual and quarterly variants.
func ProbabilityOf(p Prediction) float64 {
	for _, candidate := range []*float64{
		p.Probability,
		p.PrimaryProbability,
		p.SecondaryProbability,
		p.EnsembleProbability,
	} {
		if candidate != nil {
			return *candidate
		}
	}
	return 0
}

// RiskBadge maps a risk level onto a fixed display category.
func RiskBadge(level RiskLevel) string {
	switch level {
	case RiskLow:
		return "success"
	case RiskMedium:
		return "warning"
	case RiskHigh:
		return "danger"
	case RiskCritical:
		return "critical"
	default:
		return "neutral"
	}
}

// FormatPeriod renders "Q3 2024" for quarterly records and "Annual 2024"
// for annual ones.
func FormatPeriod(p Prediction) string {
	quarter := strings.TrimSpace(p.ReportingQuarter)
	if quarter != "" {
		return fmt.Sprintf("%s %s", strings.ToUpper(quarter), p.ReportingYear)
	}
	return "Annual " + p.ReportingYear
}
