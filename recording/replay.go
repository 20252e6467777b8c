package recording

import (
	"context"
	"time"
)

// Replay emits the records at rate records per second until every record was sent, or forever
// when loop is set. The channel closes when replay ends or ctx is done. A rate of zero or less
// sends as fast as the receiver reads.
func Replay(ctx context.Context, files []File, rate float64, loop bool) <-chan File {
	out := make(chan File)
	go func() {
		defer close(out)
		if len(files) == 0 {
			return
		}

		var tick <-chan time.Time
		if rate > 0 {
			ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
			defer ticker.Stop()
			tick = ticker.C
		}

		for i := 0; ; i++ {
			if i == len(files) {
				if !loop {
					return
				}
				i = 0
			}
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- files[i]:
			}
		}
	}()
	return out
}
