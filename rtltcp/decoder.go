package rtltcp

import "io"

// RawBufferSize is the receive buffer capacity in bytes
const RawBufferSize = 16384

// OnSamples receives a decoded batch. The slice is reused on the next call
// and must not be retained.
type OnSamples func([]complex64)

// StreamDecoder turns an unframed u8 I/Q byte stream into complex samples.
// It is not safe for concurrent use.
type StreamDecoder struct {
	raw     []byte
	samples []complex64
	carry   int
	cb      OnSamples
}

func NewStreamDecoder(cb OnSamples) *StreamDecoder {
	return &StreamDecoder{
		raw:     make([]byte, RawBufferSize),
		samples: make([]complex64, RawBufferSize/2),
		cb:      cb,
	}
}

// Pending reports whether an odd byte is held for the next read
func (d *StreamDecoder) Pending() bool {
	return d.carry == 1
}

// ReadOnce does a single read from r and decodes every complete pair.
// Bytes returned along with an error are decoded before the error is
// returned. It returns the number of samples delivered.
func (d *StreamDecoder) ReadOnce(r io.Reader) (int, error) {
	n, err := r.Read(d.raw[d.carry:])
	if n < 0 {
		n = 0
	}

	total := d.carry + n
	count := total / 2

	for i := 0; i < count; i++ {
		// first byte of the pair is Q, second is I
		d.samples[i] = complex(sampleLUT[d.raw[i*2+1]], sampleLUT[d.raw[i*2]])
	}

	if total%2 == 1 {
		d.raw[0] = d.raw[total-1]
		d.carry = 1
	} else {
		d.carry = 0
	}

	if count > 0 && d.cb != nil {
		d.cb(d.samples[:count])
	}

	return count, err
}

// Run reads from r until it fails and returns that error
func (d *StreamDecoder) Run(r io.Reader) error {
	for {
		if _, err := d.ReadOnce(r); err != nil {
			return err
		}
	}
}
