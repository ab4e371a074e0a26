package ratesync

import "time"

// Emitter receives progress and result notifications from a
// synchronization run. Implementations must be cheap and non-blocking;
// the engine calls them inline from its worker goroutine.
type Emitter interface {
	OnProgress(message string)
	OnCurrencyStarted(code string)
	OnRateWritten(code string, rate float64, date time.Time)
	OnCompleted(processed, total int)
	OnFailed(message string)
	OnCancelled()
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) OnProgress(string)                      {}
func (NopEmitter) OnCurrencyStarted(string)               {}
func (NopEmitter) OnRateWritten(string, float64, time.Time) {}
func (NopEmitter) OnCompleted(int, int)                   {}
func (NopEmitter) OnFailed(string)                        {}
func (NopEmitter) OnCancelled()                           {}

// MultiEmitter fans events out to several emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) OnProgress(message string) {
	for _, e := range m {
		e.OnProgress(message)
	}
}

func (m MultiEmitter) OnCurrencyStarted(code string) {
	for _, e := range m {
		e.OnCurrencyStarted(code)
	}
}

func (m MultiEmitter) OnRateWritten(code string, rate float64, date time.Time) {
	for _, e := range m {
		e.OnRateWritten(code, rate, date)
	}
}

func (m MultiEmitter) OnCompleted(processed, total int) {
	for _, e := range m {
		e.OnCompleted(processed, total)
	}
}

func (m MultiEmitter) OnFailed(message string) {
	for _, e := range m {
		e.OnFailed(message)
	}
}

func (m MultiEmitter) OnCancelled() {
	for _, e := range m {
		e.OnCancelled()
	}
}
