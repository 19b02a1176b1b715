package curriculum

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusReadyForReview, true},
		{StatusProcessing, StatusComplete, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusRejected, false},
		{StatusReadyForReview, StatusProcessing, true},
		{StatusReadyForReview, StatusRejected, true},
		{StatusReadyForReview, StatusComplete, false},
		{StatusError, StatusProcessing, true},
		{StatusError, StatusComplete, false},
		{StatusRejected, StatusProcessing, false},
		{StatusRejected, StatusRejected, false},
		{StatusComplete, StatusError, false},
		{Status("bogus"), StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s,%s)=%v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSourcesFor(t *testing.T) {
	got := SourcesFor(StatusError)
	if len(got) != 2 || got[0] != StatusProcessing || got[1] != StatusReadyForReview {
		t.Fatalf("SourcesFor(error)=%v", got)
	}
	if got := SourcesFor(StatusRejected); len(got) != 1 || got[0] != StatusReadyForReview {
		t.Fatalf("SourcesFor(rejected)=%v", got)
	}
	got = SourcesFor(StatusProcessing)
	want := map[Status]bool{StatusProcessing: true, StatusReadyForReview: true, StatusError: true}
	if len(got) != len(want) {
		t.Fatalf("SourcesFor(processing)=%v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected source %s", s)
		}
	}
}
