package model

type BusyOrigin string

const (
	OriginReservation BusyOrigin = "reservation"
	OriginInternal    BusyOrigin = "internal"
	OriginExternal    BusyOrigin = "external"
)

// BusyBlock is a read-only signal that time is taken.
type BusyBlock struct {
	Interval Interval
	Origin   BusyOrigin
	Label    string
}

func ReservationBlocks(rs []Reservation) []BusyBlock {
	out := make([]BusyBlock, 0, len(rs))
	for _, r := range rs {
		if !r.Status.Active() {
			continue
		}
		label := r.CustomerName
		if label == "" {
			label = "Reservation"
		}
		out = append(out, BusyBlock{Interval: r.Interval, Origin: OriginReservation, Label: label})
	}
	return out
}
