package models

import "time"

// DefaultVendorCut is the percentage of the booking amount paid out to the vendor
// when a plan does not set its own
const DefaultVendorCut = 85.0

// Plan is a vendor's travel offering. Bookings read it for vendor and commission.
type Plan struct {
	ID        string    `json:"id" db:"id"`
	VendorID  string    `json:"vendor_id" db:"vendor_id"`
	Name      string    `json:"name" db:"name"`
	Price     float64   `json:"price" db:"price"`
	VendorCut *float64  `json:"vendor_cut,omitempty" db:"vendor_cut"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// VendorCutPercent returns the plan's vendor share, falling back to fallback
func (p *Plan) VendorCutPercent(fallback float64) float64 {
	if p.VendorCut == nil || *p.VendorCut <= 0 || *p.VendorCut > 100 {
		return fallback
	}
	return *p.VendorCut
}
