package correction

// Window is a fixed-capacity ring of win/loss results. The oldest value is
// evicted once capacity is reached.
type Window struct {
	buf   []bool
	start int
	n     int
	wins  int
}

// NewWindow creates an empty window holding at most size results.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]bool, size)}
}

// Push appends a result.
func (w *Window) Push(win bool) {
	if w.n == len(w.buf) {
		if w.buf[w.start] {
			w.wins--
		}
		w.buf[w.start] = win
		w.start = (w.start + 1) % len(w.buf)
	} else {
		w.buf[(w.start+w.n)%len(w.buf)] = win
		w.n++
	}
	if win {
		w.wins++
	}
}

func (w *Window) Len() int  { return w.n }
func (w *Window) Cap() int  { return len(w.buf) }
func (w *Window) Wins() int { return w.wins }

// WinRate returns wins/len, or 0 for an empty window.
func (w *Window) WinRate() float64 {
	if w.n == 0 {
		return 0
	}
	return float64(w.wins) / float64(w.n)
}

// Values returns the results oldest first.
func (w *Window) Values() []bool {
	out := make([]bool, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// windowFrom rebuilds a window, keeping the newest values when vals exceeds
// the capacity.
func windowFrom(size int, vals []bool) *Window {
	w := NewWindow(size)
	if len(vals) > w.Cap() {
		vals = vals[len(vals)-w.Cap():]
	}
	for _, v := range vals {
		w.Push(v)
	}
	return w
}
