package convert

// Resampler converts interleaved float32 frames between sample rates using
// Catmull-Rom cubic interpolation. It is push-based: each Process call
// consumes one captured buffer and emits however many destination frames
// the accumulated input covers, carrying a three-frame history across calls
// so interpolation stays continuous at buffer boundaries.
//
// A one-pole low-pass filter is applied when downsampling as basic
// anti-aliasing.
type Resampler struct {
	ratio    float64 // source frames advanced per output frame
	channels int

	hist       []float32 // up to 3 trailing frames from the previous call
	histFrames int
	pos        float64 // fractional read position into hist+input, in frames

	filterState []float32
	useFilter   bool
	filterAlpha float32

	stream []float32 // hist + filtered input, reused
	out    []float32
}

func NewResampler(srcRate, dstRate, channels int) *Resampler {
	ratio := float64(srcRate) / float64(dstRate)
	r := &Resampler{
		ratio:    ratio,
		channels: channels,
		hist:     make([]float32, 3*channels),
		// Start one frame in so the cubic kernel always has a left neighbor.
		pos:       1,
		useFilter: ratio > 1.0,
	}
	if r.useFilter {
		r.filterAlpha = 0.5
		r.filterState = make([]float32, channels)
	}
	return r
}

// Process resamples one buffer of interleaved frames. The returned slice is
// reused by the next call. It may be empty when the input is too short to
// cover a single output frame.
func (r *Resampler) Process(in []float32) []float32 {
	ch := r.channels
	inFrames := len(in) / ch
	total := r.histFrames + inFrames

	need := total * ch
	if cap(r.stream) < need {
		r.stream = make([]float32, need)
	}
	stream := r.stream[:need]
	copy(stream, r.hist[:r.histFrames*ch])
	copy(stream[r.histFrames*ch:], in)

	if r.useFilter {
		// y[n] = alpha*x[n] + (1-alpha)*y[n-1], per channel.
		for f := r.histFrames; f < total; f++ {
			base := f * ch
			for c := 0; c < ch; c++ {
				y := r.filterAlpha*stream[base+c] + (1-r.filterAlpha)*r.filterState[c]
				stream[base+c] = y
				r.filterState[c] = y
			}
		}
	}

	// Emit while the kernel window [i-1, i+2] fits inside the stream.
	maxOut := 0
	if total > 3 {
		maxOut = int(float64(total-3)/r.ratio) + 2
	}
	if cap(r.out) < maxOut*ch {
		r.out = make([]float32, maxOut*ch)
	}
	out := r.out[:0]

	for {
		i := int(r.pos)
		if i+2 >= total {
			break
		}
		alpha := float32(r.pos - float64(i))
		for c := 0; c < ch; c++ {
			y0 := stream[(i-1)*ch+c]
			y1 := stream[i*ch+c]
			y2 := stream[(i+1)*ch+c]
			y3 := stream[(i+2)*ch+c]
			out = append(out, cubicInterpolate(y0, y1, y2, y3, alpha))
		}
		r.pos += r.ratio
	}

	// Keep the last three frames for the next call and rebase pos onto them.
	keep := 3
	if total < keep {
		keep = total
	}
	copy(r.hist, stream[(total-keep)*ch:total*ch])
	r.histFrames = keep
	r.pos -= float64(total - keep)
	if r.pos < 0 {
		r.pos = 0
	}
	r.out = out
	return out
}

// cubicInterpolate evaluates a Catmull-Rom spline through y0..y3 at x in [0,1).
func cubicInterpolate(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1
	return a0*x*x*x + a1*x*x + a2*x + a3
}
