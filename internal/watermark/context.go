package watermark

import "time"

// UpdateContext is the pair of watermarks a refresh of one scope runs against.
// External is the last time the scope was confirmed fresh from the upstream;
// Internal is the last time local persistence was confirmed consistent. A nil
// Internal forces a full rescan.
type UpdateContext struct {
	External *time.Time
	Internal *time.Time
}

// FullScan returns the context of a forced full rescan.
func FullScan() UpdateContext { return UpdateContext{} }

// Full reports whether the context requires a full rescan.
func (c UpdateContext) Full() bool { return c.Internal == nil }

// Since returns the internal watermark, or the zero time for a full rescan.
func (c UpdateContext) Since() time.Time {
	if c.Internal == nil {
		return time.Time{}
	}
	return *c.Internal
}
