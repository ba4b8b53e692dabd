package activity

import (
	"context"
	"fmt"
	"time"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, sink)

	hub.Emit(Event{Kind: KindAutoDownload, TS: time.Unix(0, 0), ItemID: "item-1"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleSinkFunc totals transferred bytes with a function sink.
func ExampleSinkFunc() {
	var total int64
	hub := NewHub(Config{
		BufferSize:     2,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, SinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			total += evt.Bytes
		}
		return nil
	}))

	hub.Emit(Event{Kind: KindTransferDone, TS: time.Unix(0, 0), ItemID: "item-1", Bytes: 512})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("bytes transferred: %d\n", total)
	// Output:
	// bytes transferred: 512
}
