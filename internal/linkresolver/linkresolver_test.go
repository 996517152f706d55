package linkresolver

import (
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	parcelIDs := map[string]struct{}{"P1": {}, "P2": {}, "P3": {}}

	tests := []struct {
		name string
		link string
		want []string
	}{
		{"empty", "", nil},
		{"single", "P1", []string{"P1"}},
		{"semicolon separated", "P1;P2", []string{"P1", "P2"}},
		{"comma separated", "P1,P2", []string{"P1", "P2"}},
		{"pipe separated", "P1|P2", []string{"P1", "P2"}},
		{"mixed separators with whitespace", " P1 ; P2, P3 ", []string{"P1", "P2", "P3"}},
		{"drops unknown parcel ids", "P1;P99", []string{"P1"}},
		{"drops empty tokens", "P1;;P2", []string{"P1", "P2"}},
		{"all unknown", "P99;P100", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.link, parcelIDs)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tt.link, got, tt.want)
			}
		})
	}
}
