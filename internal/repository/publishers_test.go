package repository

import (
	"context"
	"errors"
	"testing"

	"PricePull/internal/domain/models"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []models.PriceEvent
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.PriceEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestFanoutPublisherReachesEveryone(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingPublisher{}
	b := &recordingPublisher{err: boom}
	f := NewFanoutPublisher(a, nil, b)

	err := f.Publish(context.Background(), models.PriceEvent{ItemKey: "Pork_Belly", Price: 2500})
	require.ErrorIs(t, err, boom)
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)

	require.NoError(t, f.Close())
	require.True(t, a.closed)
	require.True(t, b.closed)
}
