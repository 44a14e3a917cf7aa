package headers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseHeaders(t *testing.T) {
	in := []string{"user-agent: Bot", "Accept: text/html", "BadHeader", ": empty", "X-Token: a:b"}
	want := map[string]string{"User-Agent": "Bot", "Accept": "text/html", "X-Token": "a:b"}
	if diff := cmp.Diff(want, ParseHeaders(in)); diff != "" {
		t.Fatalf("ParseHeaders mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name       string
		base, over map[string]string
		want       map[string]string
	}{
		{"both empty", nil, map[string]string{}, nil},
		{"base only", map[string]string{"from": "a"}, nil, map[string]string{"From": "a"}},
		{"override wins", map[string]string{"From": "a", "Accept": "*/*"}, map[string]string{"from": "b"},
			map[string]string{"From": "b", "Accept": "*/*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Merge(tt.base, tt.over)); diff != "" {
				t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
