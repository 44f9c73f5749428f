package pageguard

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// RESTRICTION CHECKERS
// ============================================================================

// RestrictionResult reports one checker's outcome with a specific reason on
// failure. Checkers are pure functions of the context.
type RestrictionResult struct {
	Allowed bool
	Reason  string
}

func restrictionPass() RestrictionResult {
	return RestrictionResult{Allowed: true}
}

func restrictionFail(reason string) RestrictionResult {
	return RestrictionResult{Allowed: false, Reason: reason}
}

// CheckTimeWindow applies each bound independently; the first failing bound
// short-circuits with its own reason.
func CheckTimeWindow(w *TimeWindow, t TimeInfo) RestrictionResult {
	if w == nil {
		return restrictionPass()
	}
	if w.ValidFrom != nil && t.Now.Before(*w.ValidFrom) {
		return restrictionFail(fmt.Sprintf("not yet valid: starts %s", w.ValidFrom.Format("2006-01-02 15:04")))
	}
	if w.ValidTo != nil && t.Now.After(*w.ValidTo) {
		return restrictionFail(fmt.Sprintf("no longer valid: ended %s", w.ValidTo.Format("2006-01-02 15:04")))
	}
	if w.DailyStart != "" && t.TimeOfDay < w.DailyStart {
		return restrictionFail(fmt.Sprintf("outside daily window: before %s", w.DailyStart))
	}
	if w.DailyEnd != "" && t.TimeOfDay > w.DailyEnd {
		return restrictionFail(fmt.Sprintf("outside daily window: after %s", w.DailyEnd))
	}
	if len(w.DaysOfWeek) > 0 {
		found := false
		for _, d := range w.DaysOfWeek {
			if strings.EqualFold(d, t.DayOfWeek) {
				found = true
				break
			}
		}
		if !found {
			return restrictionFail(fmt.Sprintf("not allowed on %s", t.DayOfWeek))
		}
	}
	return restrictionPass()
}

// ipv4ToInt converts dotted IPv4 to its 32-bit integer value
func ipv4ToInt(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var n uint32
	for _, p := range parts {
		o, err := strconv.Atoi(p)
		if err != nil || o < 0 || o > 255 {
			return 0, false
		}
		n = n*256 + uint32(o)
	}
	return n, true
}

// CheckIPRestrictions allows the request if any restriction matches. An empty
// list always passes; a non-empty list with an unknown request IP denies
// (membership cannot be proven).
func CheckIPRestrictions(restrictions []IPRestriction, ip string) RestrictionResult {
	if len(restrictions) == 0 {
		return restrictionPass()
	}
	if ip == "" {
		return restrictionFail("ip restriction configured but request ip unknown")
	}
	for _, r := range restrictions {
		if r.EndIP == "" {
			if r.StartIP == ip {
				return restrictionPass()
			}
			continue
		}
		v, ok := ipv4ToInt(ip)
		if !ok {
			continue
		}
		lo, okLo := ipv4ToInt(r.StartIP)
		hi, okHi := ipv4ToInt(r.EndIP)
		if okLo && okHi && lo <= v && v <= hi {
			return restrictionPass()
		}
	}
	return restrictionFail(fmt.Sprintf("ip %s not in allowed ranges", ip))
}

// CheckGeoRestrictions allows the request if any restriction matches; a
// restriction matches when every present field equals the request geo (absent
// fields are wildcards). A present list with missing context geo denies.
func CheckGeoRestrictions(restrictions []GeoRestriction, geo *GeoInfo) RestrictionResult {
	if len(restrictions) == 0 {
		return restrictionPass()
	}
	if geo == nil {
		return restrictionFail("geo restriction configured but request geo unknown")
	}
	for _, r := range restrictions {
		if r.Country != "" && r.Country != geo.Country {
			continue
		}
		if r.Region != "" && r.Region != geo.Region {
			continue
		}
		if r.City != "" && r.City != geo.City {
			continue
		}
		return restrictionPass()
	}
	return restrictionFail("location not in allowed regions")
}

// DeviceInfo is the heuristic parse of a user agent
type DeviceInfo struct {
	DeviceType string // mobile, tablet, desktop
	OS         string
}

// ParseUserAgent classifies a user agent by substring heuristics
func ParseUserAgent(ua string) DeviceInfo {
	info := DeviceInfo{DeviceType: "desktop", OS: "Unknown"}
	if ua == "" {
		return info
	}
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		info.DeviceType = "tablet"
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "android") || strings.Contains(lower, "iphone"):
		info.DeviceType = "mobile"
	}
	switch {
	case strings.Contains(lower, "windows"):
		info.OS = "Windows"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ios"):
		info.OS = "iOS"
	case strings.Contains(lower, "mac"):
		info.OS = "macOS"
	case strings.Contains(lower, "android"):
		info.OS = "Android"
	case strings.Contains(lower, "linux"):
		info.OS = "Linux"
	}
	return info
}

// CheckDeviceRestrictions allows the request if any restriction matches the
// parsed user agent. An absent list always passes.
func CheckDeviceRestrictions(restrictions []DeviceRestriction, userAgent string) RestrictionResult {
	if len(restrictions) == 0 {
		return restrictionPass()
	}
	dev := ParseUserAgent(userAgent)
	for _, r := range restrictions {
		if r.DeviceType != "" && !strings.EqualFold(r.DeviceType, dev.DeviceType) {
			continue
		}
		if len(r.OperatingSystems) > 0 {
			found := false
			for _, os := range r.OperatingSystems {
				if strings.EqualFold(os, dev.OS) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		return restrictionPass()
	}
	return restrictionFail(fmt.Sprintf("device %s/%s not allowed", dev.DeviceType, dev.OS))
}

// checkPolicyRestrictions runs all policy-level restriction checkers in a
// fixed order; the first failure wins.
func checkPolicyRestrictions(p *Policy, ec *EvaluationContext) RestrictionResult {
	if res := CheckTimeWindow(p.Window(), ec.Time); !res.Allowed {
		return res
	}
	if res := CheckIPRestrictions(p.IPRestrictions, ec.Request.IP); !res.Allowed {
		return res
	}
	if res := CheckGeoRestrictions(p.GeoRestrictions, ec.Request.Geo); !res.Allowed {
		return res
	}
	if res := CheckDeviceRestrictions(p.DeviceRestrictions, ec.Request.UserAgent); !res.Allowed {
		return res
	}
	return restrictionPass()
}
