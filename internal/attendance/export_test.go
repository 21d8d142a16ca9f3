package attendance

import "time"

// SetClock fixes the time the service considers to be now.
func (s *Service) SetClock(now func() time.Time) { s.now = now }
