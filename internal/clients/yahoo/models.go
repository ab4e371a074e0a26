package yahoo

import "time"

// DailyClose is one day's closing value for a traded symbol. Days the
// market did not trade are simply absent from the series.
type DailyClose struct {
	Date  time.Time
	Close float64
}
