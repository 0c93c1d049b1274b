package domain

import "time"

// Keyword is one FITS header card, carried as opaque text.
type Keyword struct {
	Name    string
	Value   string
	Comment string
}

// Header keeps cards in file order.
type Header []Keyword

func (h Header) Get(name string) (Keyword, bool) {
	for _, k := range h {
		if k.Name == name {
			return k, true
		}
	}
	return Keyword{}, false
}

// Map flattens the header; the first card of a repeated name wins.
func (h Header) Map() map[string]string {
	out := make(map[string]string, len(h))
	for _, k := range h {
		if _, ok := out[k.Name]; !ok {
			out[k.Name] = k.Value
		}
	}
	return out
}

// Product is one output frame. Missing is set when the recipe reported a
// file that was not on disk after the run.
type Product struct {
	Frame   Frame
	Size    int64
	Missing bool
	Header  Header
}

// InvocationResult belongs to the caller once returned.
type InvocationResult struct {
	RunID      string
	Recipe     string
	Plugin     string
	Status     int
	Outputs    FrameSet
	Products   []Product
	Keywords   map[string]string
	Log        string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *InvocationResult) OK() bool {
	return r != nil && r.Status == 0
}

func (r *InvocationResult) Duration() time.Duration {
	if r == nil || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
