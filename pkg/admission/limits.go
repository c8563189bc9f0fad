package admission

import "time"

const megabyte = 1 << 20

// timeoutFor scales the job deadline with input size: a fixed base plus
// a per-megabyte increment, rounding partial megabytes up
func (c *Controller) timeoutFor(sizeBytes int64) time.Duration {
	mb := (sizeBytes + megabyte - 1) / megabyte
	return c.cfg.BaseTimeout + time.Duration(mb)*c.cfg.TimeoutPerMB
}
