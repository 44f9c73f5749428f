package pageguard

import (
	"strings"
	"testing"
	"time"
)

func TestCheckTimeWindowBounds(t *testing.T) {
	now := time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC) // Tuesday 14:00
	ti := NewTimeInfo(now)

	if res := CheckTimeWindow(nil, ti); !res.Allowed {
		t.Fatalf("nil window must pass")
	}

	future := now.Add(time.Hour)
	res := CheckTimeWindow(&TimeWindow{ValidFrom: &future}, ti)
	if res.Allowed || !strings.Contains(res.Reason, "not yet valid") {
		t.Fatalf("expected not-yet-valid, got %+v", res)
	}

	past := now.Add(-time.Hour)
	res = CheckTimeWindow(&TimeWindow{ValidTo: &past}, ti)
	if res.Allowed || !strings.Contains(res.Reason, "no longer valid") {
		t.Fatalf("expected expired, got %+v", res)
	}

	res = CheckTimeWindow(&TimeWindow{DailyStart: "15:00"}, ti)
	if res.Allowed || !strings.Contains(res.Reason, "before 15:00") {
		t.Fatalf("expected before-start, got %+v", res)
	}

	res = CheckTimeWindow(&TimeWindow{DailyEnd: "13:00"}, ti)
	if res.Allowed || !strings.Contains(res.Reason, "after 13:00") {
		t.Fatalf("expected after-end, got %+v", res)
	}

	res = CheckTimeWindow(&TimeWindow{DaysOfWeek: []string{"Saturday", "Sunday"}}, ti)
	if res.Allowed || !strings.Contains(res.Reason, "Tuesday") {
		t.Fatalf("expected day denial naming Tuesday, got %+v", res)
	}

	// all bounds satisfied
	res = CheckTimeWindow(&TimeWindow{
		ValidFrom:  &past,
		ValidTo:    &future,
		DailyStart: "09:00",
		DailyEnd:   "17:00",
		DaysOfWeek: []string{"tuesday"},
	}, ti)
	if !res.Allowed {
		t.Fatalf("expected pass, got %+v", res)
	}
}

func TestCheckIPRestrictionsRange(t *testing.T) {
	ranges := []IPRestriction{{StartIP: "10.0.0.0", EndIP: "10.0.0.255"}}

	if res := CheckIPRestrictions(ranges, "10.0.0.57"); !res.Allowed {
		t.Fatalf("10.0.0.57 should be inside the range: %+v", res)
	}
	if res := CheckIPRestrictions(ranges, "10.0.1.1"); res.Allowed {
		t.Fatalf("10.0.1.1 should be outside the range")
	}
	// boundaries are inclusive
	if res := CheckIPRestrictions(ranges, "10.0.0.0"); !res.Allowed {
		t.Fatalf("start boundary should match")
	}
	if res := CheckIPRestrictions(ranges, "10.0.0.255"); !res.Allowed {
		t.Fatalf("end boundary should match")
	}
}

func TestCheckIPRestrictionsExact(t *testing.T) {
	exact := []IPRestriction{{StartIP: "192.168.1.1"}}
	if res := CheckIPRestrictions(exact, "192.168.1.1"); !res.Allowed {
		t.Fatalf("exact ip should match")
	}
	if res := CheckIPRestrictions(exact, "192.168.1.2"); res.Allowed {
		t.Fatalf("different ip should not match exact restriction")
	}
}

func TestCheckIPRestrictionsEdgeCases(t *testing.T) {
	if res := CheckIPRestrictions(nil, "1.2.3.4"); !res.Allowed {
		t.Fatalf("empty restriction list must pass")
	}
	ranges := []IPRestriction{{StartIP: "10.0.0.0", EndIP: "10.0.0.255"}}
	if res := CheckIPRestrictions(ranges, ""); res.Allowed {
		t.Fatalf("unknown request ip with restrictions must deny")
	}
	// malformed request ip cannot prove membership in a range
	if res := CheckIPRestrictions(ranges, "not-an-ip"); res.Allowed {
		t.Fatalf("malformed ip must deny")
	}
}

func TestIPv4ToInt(t *testing.T) {
	v, ok := ipv4ToInt("10.0.0.57")
	if !ok || v != 10*256*256*256+57 {
		t.Fatalf("unexpected value %d ok=%v", v, ok)
	}
	if _, ok := ipv4ToInt("256.0.0.1"); ok {
		t.Fatalf("octet out of range must fail")
	}
	if _, ok := ipv4ToInt("1.2.3"); ok {
		t.Fatalf("three octets must fail")
	}
}

func TestCheckGeoRestrictions(t *testing.T) {
	restrictions := []GeoRestriction{
		{Country: "US", Region: "CA"},
		{Country: "DE"},
	}
	if res := CheckGeoRestrictions(restrictions, &GeoInfo{Country: "US", Region: "CA", City: "SF"}); !res.Allowed {
		t.Fatalf("US/CA should match (city is wildcard): %+v", res)
	}
	if res := CheckGeoRestrictions(restrictions, &GeoInfo{Country: "DE", Region: "BE"}); !res.Allowed {
		t.Fatalf("DE should match country-only restriction")
	}
	if res := CheckGeoRestrictions(restrictions, &GeoInfo{Country: "US", Region: "NY"}); res.Allowed {
		t.Fatalf("US/NY matches neither restriction")
	}
	if res := CheckGeoRestrictions(restrictions, nil); res.Allowed {
		t.Fatalf("missing geo with restrictions must deny")
	}
	if res := CheckGeoRestrictions(nil, nil); !res.Allowed {
		t.Fatalf("empty restriction list must pass")
	}
}

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		ua         string
		deviceType string
		os         string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "desktop", "Windows"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile", "mobile", "iOS"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", "tablet", "iOS"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", "mobile", "Android"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", "desktop", "macOS"},
		{"Mozilla/5.0 (X11; Linux x86_64)", "desktop", "Linux"},
		{"", "desktop", "Unknown"},
	}
	for _, c := range cases {
		got := ParseUserAgent(c.ua)
		if got.DeviceType != c.deviceType || got.OS != c.os {
			t.Fatalf("ParseUserAgent(%q) = %+v, want %s/%s", c.ua, got, c.deviceType, c.os)
		}
	}
}

func TestCheckDeviceRestrictions(t *testing.T) {
	desktopOnly := []DeviceRestriction{{DeviceType: "desktop"}}
	winUA := "Mozilla/5.0 (Windows NT 10.0)"
	phoneUA := "Mozilla/5.0 (iPhone) Mobile"

	if res := CheckDeviceRestrictions(desktopOnly, winUA); !res.Allowed {
		t.Fatalf("desktop UA should pass desktop restriction")
	}
	if res := CheckDeviceRestrictions(desktopOnly, phoneUA); res.Allowed {
		t.Fatalf("phone UA should fail desktop restriction")
	}

	winDesktop := []DeviceRestriction{{DeviceType: "desktop", OperatingSystems: []string{"Windows"}}}
	if res := CheckDeviceRestrictions(winDesktop, "Mozilla/5.0 (X11; Linux x86_64)"); res.Allowed {
		t.Fatalf("linux desktop should fail a windows-only restriction")
	}
	if res := CheckDeviceRestrictions(nil, phoneUA); !res.Allowed {
		t.Fatalf("empty restriction list must pass")
	}
}
