// internal/domain/station/entity.go
package station

import (
	"database/sql"
	"time"
)

// Station is a physical scanning point on the production floor, identified
// by a stable identifier and a secret.
type Station struct {
	ID          string         `json:"id" db:"id"` // e.g. STATION_CUTTING_01
	Name        string         `json:"name" db:"name"`
	Location    sql.NullString `json:"location" db:"location"`
	SecretHash  string         `json:"-" db:"secret_hash"`
	Permissions []string       `json:"permissions" db:"permissions"`
	Active      bool           `json:"active" db:"active"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// ServiceSession is the long-lived credential record of an authenticated,
// unattended station. Rows are refreshed in place and marked inactive on
// cleanup, never hard-deleted.
type ServiceSession struct {
	ID             string         `json:"id" db:"id"` // ULID
	StationID      string         `json:"station_id" db:"station_id"`
	StationName    string         `json:"station_name" db:"station_name"`
	Location       sql.NullString `json:"location" db:"location"`
	Permissions    []string       `json:"permissions" db:"permissions"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time      `json:"last_activity_at" db:"last_activity_at"`
	Active         bool           `json:"active" db:"active"`
}

// ValidAt reports whether the session authorizes operations at t: it must
// exist, be active, and not yet expired.
func (s *ServiceSession) ValidAt(t time.Time) bool {
	return s != nil && s.Active && s.ExpiresAt.After(t)
}
