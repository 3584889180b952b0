package detector

// ScoreSample is the score of one frame.
type ScoreSample struct {
	Frame int
	Score float64
}

// slidingWindow is a fixed-capacity FIFO of the most recent samples.
type slidingWindow struct {
	samples []ScoreSample
	start   int
	size    int
}

func newSlidingWindow(capacity int) *slidingWindow {
	return &slidingWindow{samples: make([]ScoreSample, capacity)}
}

// push appends a sample, evicting the oldest one once the window is full.
func (w *slidingWindow) push(s ScoreSample) {
	if w.size < len(w.samples) {
		w.samples[(w.start+w.size)%len(w.samples)] = s
		w.size++
		return
	}
	w.samples[w.start] = s
	w.start = (w.start + 1) % len(w.samples)
}

func (w *slidingWindow) full() bool {
	return w.size == len(w.samples)
}

func (w *slidingWindow) len() int {
	return w.size
}

// at returns the i-th oldest sample.
func (w *slidingWindow) at(i int) ScoreSample {
	return w.samples[(w.start+i)%len(w.samples)]
}

func (w *slidingWindow) reset() {
	w.start, w.size = 0, 0
}
