package reader

// NextSize applies the window sizing policy to the previous read.
// contentSize and lines describe what that read returned, delta is the
// slack allowed for the discarded partial line. retry is true when the
// content held too many lines for one request and must be re-read at the
// same offset with the returned (halved) window.
func NextSize(window, contentSize uint64, lines int, delta uint64) (next uint64, retry bool) {
	if lines >= MaxBatchEvents {
		return clamp(window / 2), true
	}

	if contentSize > delta && window > delta && contentSize < window-delta {
		// under-filled read
		return clamp(contentSize), false
	}

	next = contentSize * 3 / 2
	if next > MaxWindow {
		next = MaxWindow
	}
	return clamp(next), false
}

// Grow doubles a window that was too small to hold a single line.
func Grow(window uint64) uint64 {
	next := window * 2
	if next > MaxWindow {
		next = MaxWindow
	}
	return clamp(next)
}

func clamp(window uint64) uint64 {
	if window < MinWindow {
		return MinWindow
	}
	return window
}
