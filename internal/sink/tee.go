package sink

import (
	"context"

	"shuttletrack/internal/domain"
)

// Tee appends to a durable primary sink and mirrors each record, under
// the primary's ids, into the in-memory sink that serves the read API.
// A primary failure aborts the append; the mirror never diverges ahead
// of the primary.
type Tee struct {
	primary Sink
	mirror  *Memory
}

func NewTee(primary Sink, mirror *Memory) *Tee {
	return &Tee{primary: primary, mirror: mirror}
}

func (t *Tee) Append(ctx context.Context, arrival domain.Arrival, skip *domain.SkipError) (Receipt, error) {
	receipt, err := t.primary.Append(ctx, arrival, skip)
	if err != nil {
		return Receipt{}, err
	}

	arrival.ID = receipt.ArrivalID
	if skip != nil {
		record := *skip
		record.ID = receipt.SkipErrorID
		skip = &record
	}
	t.mirror.Mirror(arrival, skip)

	return receipt, nil
}
