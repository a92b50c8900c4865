// internal/domain/station/dto.go
package station

import "time"

// AuthenticateRequest carries the station credential pair.
type AuthenticateRequest struct {
	StationID     string `json:"station_id" binding:"required"`
	StationSecret string `json:"station_secret" binding:"required"`
}

// AuthenticateResponse returns station metadata on success, plus the
// short-lived proof the station exchanges for a service session.
type AuthenticateResponse struct {
	Success     bool     `json:"success"`
	StationName string   `json:"station_name,omitempty"`
	Location    string   `json:"location,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	AuthProof   string   `json:"auth_proof,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// CreateServiceSessionRequest opens a service-session row. AuthProof ties
// the request to a recent successful authentication of the same station;
// name, location and permissions come from the station record, not the
// caller.
type CreateServiceSessionRequest struct {
	StationID   string    `json:"station_id" binding:"required"`
	AuthProof   string    `json:"auth_proof" binding:"required"`
	StationName string    `json:"station_name,omitempty"`
	Location    string    `json:"location,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	ExpiresAt   time.Time `json:"expires_at" binding:"required"`
}

// UpdateServiceSessionRequest patches a service-session row. Nil fields are
// left unchanged.
type UpdateServiceSessionRequest struct {
	ExpiresAt      *time.Time `json:"expires_at"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	Active         *bool      `json:"active"`
}

// ScanRequest applies a status update for a scanned barcode.
type ScanRequest struct {
	Barcode   string `json:"barcode" binding:"required"`
	NewStatus string `json:"new_status" binding:"required"`
	Notes     string `json:"notes"`
}
