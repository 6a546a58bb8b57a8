package service

import (
	"context"
	"time"
)

// Recorder receives settlement metrics.
type Recorder interface {
	WagerPlaced(side string, amount, fee uint64)
	MarketResolved(outcome string)
	WinningsClaimed(amount uint64)
	FeesCollected(amount uint64)
	OperationFailed(op, code string)
	ObserveOperation(op string, d time.Duration)
}

// EventNotifier delivers human-facing alerts.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

type nopRecorder struct{}

func (nopRecorder) WagerPlaced(string, uint64, uint64)     {}
func (nopRecorder) MarketResolved(string)                  {}
func (nopRecorder) WinningsClaimed(uint64)                 {}
func (nopRecorder) FeesCollected(uint64)                   {}
func (nopRecorder) OperationFailed(string, string)         {}
func (nopRecorder) ObserveOperation(string, time.Duration) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string, string) error { return nil }
