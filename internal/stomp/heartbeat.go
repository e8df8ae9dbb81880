package stomp

import "time"

// heartbeatEOL is the STOMP heart-beat: a lone end-of-line.
var heartbeatEOL = []byte("\n")

// heartbeatLoop sends a heart-beat every interval until the connection
// closes. The write mutex serializes it with application frames. A failed
// write ends the connection.
func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(heartbeatEOL); err != nil {
				c.log.Debug().Err(err).Msg("heart-beat failed")
				if c.closing.Load() {
					err = nil
				}
				c.shutdown(err)
				return
			}
		}
	}
}
