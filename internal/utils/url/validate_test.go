package urlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"https://planning.merton.gov.uk/Northgate/PlanningExplorerAA/Generic/StdDetails.aspx?PT=x", true},
		{"http://example.org/app/1", true},
		{"ftp://example.org/app/1", false},
		{"12/01234/FUL", false},
		{"https://", false},
		{"http://[::1", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := ValidateURL(tt.in)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
