package api

import (
	"encoding/json"
	"fmt"
)

// TokenObtainPayload is the body of a login request.
type TokenObtainPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenRefreshPayload is the body of a refresh request.
type TokenRefreshPayload struct {
	Refresh string `json:"refresh"`
}

// TokenPair is returned by the token endpoints. Refresh is omitted by
// servers that do not rotate refresh tokens.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Page is a paginated list response.
type Page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

// Resource names a collection of the clinical-records API.
type Resource string

const (
	AISummaries        Resource = "ai-summaries"
	Patients           Resource = "patients"
	Encounters         Resource = "encounters"
	LabResults         Resource = "lab-results"
	MedicationOrders   Resource = "medication-orders"
	ClinicalReferences Resource = "clinical-references"
)

var Resources = []Resource{
	AISummaries,
	Patients,
	Encounters,
	LabResults,
	MedicationOrders,
	ClinicalReferences,
}

// ParseResource accepts a resource name like "patients".
func ParseResource(s string) (Resource, error) {
	for _, r := range Resources {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource '%s'", s)
}
