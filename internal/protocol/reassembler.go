package protocol

// Reassembler turns a stream of byte chunks of any size into whole frames.
// At most FrameSize-1 bytes are carried between calls to Feed. A Reassembler
// is not safe for concurrent use.
type Reassembler struct {
	carry [FrameSize - 1]byte
	n     int
}

// Feed appends chunk to the carried bytes and calls fn for every complete
// frame, in arrival order. A trailing partial frame is kept for the next call.
// It returns the number of frames emitted.
func (r *Reassembler) Feed(chunk []byte, fn func(Frame)) int {
	emitted := 0

	if r.n > 0 {
		if len(chunk) == 0 {
			return 0
		}
		var buf [FrameSize]byte
		copy(buf[:], r.carry[:r.n])
		need := FrameSize - r.n
		if len(chunk) < need {
			r.n += copy(r.carry[r.n:], chunk)
			return 0
		}
		copy(buf[r.n:], chunk[:need])
		chunk = chunk[need:]
		r.n = 0
		f, _ := Decode(buf[:])
		fn(f)
		emitted++
	}

	for len(chunk) >= FrameSize {
		f, _ := Decode(chunk)
		fn(f)
		emitted++
		chunk = chunk[FrameSize:]
	}

	r.n = copy(r.carry[:], chunk)
	return emitted
}

// Pending returns the number of carried bytes awaiting completion.
func (r *Reassembler) Pending() int {
	return r.n
}

// Reset drops any carried bytes.
func (r *Reassembler) Reset() {
	r.n = 0
}
