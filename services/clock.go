package services

import "time"

// Clock lets tests pin "now". All validity windows compare stored timestamps
// against it at read time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
