package probe

import "testing"

// Scenario S4: a duration of exactly one hour, two minutes, three seconds,
// and 456 milliseconds renders as "01:02:03.45" (two fractional digits,
// truncated not rounded).
func TestConvertDurationScenarioS4(t *testing.T) {
	got := DurationOf("3723.456")
	want := "01:02:03.45"
	if got != want {
		t.Fatalf("DurationOf(3723.456) = %q, want %q", got, want)
	}
}

func TestConvertDurationZero(t *testing.T) {
	if got := DurationOf("0"); got != "00:00:00.00" {
		t.Fatalf("DurationOf(0) = %q, want 00:00:00.00", got)
	}
}

func TestConvertDurationMalformed(t *testing.T) {
	for _, in := range []string{"", "not-a-number", "-5"} {
		if got := DurationOf(in); got != "00:00:00.00" {
			t.Fatalf("DurationOf(%q) = %q, want 00:00:00.00", in, got)
		}
	}
}

func TestConvertDurationUnitSuffix(t *testing.T) {
	// ffprobe-style "value unit" attributes are truncated at the first space.
	if got := DurationOf("61.5 s"); got != "00:01:01.50" {
		t.Fatalf("DurationOf('61.5 s') = %q, want 00:01:01.50", got)
	}
}

func TestStreamKindFromCodecType(t *testing.T) {
	cases := map[string]bool{
		"video":    true,
		"Video":    true,
		"audio":    true,
		"subtitle": true,
		"data":     false,
		"":         false,
	}
	for in, recognized := range cases {
		kind := streamKindFromCodecType(in)
		if (kind != 0) != recognized {
			t.Errorf("streamKindFromCodecType(%q) recognized = %v, want %v", in, kind != 0, recognized)
		}
	}
}

func TestNumericPrefix(t *testing.T) {
	cases := map[string]string{
		"1234":      "1234",
		"1234 B":    "1234",
		"48000 Hz":  "48000",
		"":          "",
		"no spaces": "no",
	}
	for in, want := range cases {
		if got := numericPrefix(in); got != want {
			t.Errorf("numericPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
