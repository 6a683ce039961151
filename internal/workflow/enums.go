package workflow

import "strings"

// BookingStatus is a planned truck row's lifecycle state.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingBooked    BookingStatus = "booked"
	BookingCancelled BookingStatus = "cancelled"
)

// ParseBookingStatus maps stored text to a BookingStatus; unrecognized text
// falls back to pending.
func ParseBookingStatus(s string) BookingStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(BookingBooked):
		return BookingBooked
	case string(BookingCancelled), "canceled":
		return BookingCancelled
	default:
		return BookingPending
	}
}

// LoadingOrigin says where a truck row was loaded from.
type LoadingOrigin string

const (
	OriginWarehouse LoadingOrigin = "warehouse"
	OriginPort      LoadingOrigin = "port"
	OriginMixed     LoadingOrigin = "mixed"
)

// ParseLoadingOrigin maps stored text to a LoadingOrigin; unrecognized text
// falls back to warehouse.
func ParseLoadingOrigin(s string) LoadingOrigin {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(OriginPort):
		return OriginPort
	case string(OriginMixed):
		return OriginMixed
	default:
		return OriginWarehouse
	}
}

// ClearanceMode says who clears customs at a checkpoint.
type ClearanceMode string

const (
	ClearanceClient ClearanceMode = "client"
	ClearanceZaxon  ClearanceMode = "zaxon"
)

// ParseClearanceMode maps stored text to a ClearanceMode; unrecognized text
// falls back to zaxon.
func ParseClearanceMode(s string) ClearanceMode {
	if strings.ToLower(strings.TrimSpace(s)) == string(ClearanceClient) {
		return ClearanceClient
	}
	return ClearanceZaxon
}
