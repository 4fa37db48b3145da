package submission

import "io"

// progressReader reports the share of size read so far, once per percentage step.
type progressReader struct {
	r          io.Reader
	size       int64
	read       int64
	lastReport int
	onProgress ProgressFunc
}

func newProgressReader(r io.Reader, size int64, onProgress ProgressFunc) *progressReader {
	return &progressReader{
		r:          r,
		size:       size,
		lastReport: -1,
		onProgress: onProgress,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	percent := 100
	if p.size > 0 {
		percent = int(p.read * 100 / p.size)
	}
	if percent > 100 {
		percent = 100
	}
	if (n > 0 || err == io.EOF) && percent != p.lastReport {
		p.lastReport = percent
		p.onProgress(percent)
	}

	return n, err
}
