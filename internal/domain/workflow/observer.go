package workflow

import "context"

// Observer is told about every committed record change.
type Observer interface {
	RecordChanged(ctx context.Context, evt Event)
}

type ObserverFunc func(ctx context.Context, evt Event)

func (f ObserverFunc) RecordChanged(ctx context.Context, evt Event) {
	f(ctx, evt)
}

type Observers []Observer

func (o Observers) RecordChanged(ctx context.Context, evt Event) {
	for _, obs := range o {
		if obs != nil {
			obs.RecordChanged(ctx, evt)
		}
	}
}
