package recording

import (
	"github.com/nvr-ai/go-perception/transport"
)

// Valid returns the records that decode as camera frames. Each rejected record is reported to
// skip, which may be nil.
func Valid(files []File, skip func(File, error)) []File {
	out := files[:0:0]
	for _, f := range files {
		if _, err := transport.DecodeFrame(f.Data); err != nil {
			if skip != nil {
				skip(f, err)
			}
			continue
		}
		out = append(out, f)
	}
	return out
}
