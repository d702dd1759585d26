package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetline/dispatch/internal/domain/model"
)

func TestDisplayAddress(t *testing.T) {
	tests := []struct {
		name string
		loc  model.Location
		want string
	}{
		{
			name: "full address",
			loc:  model.Location{Street: "500 Main St", City: "Austin", State: "TX", Zip: "78701", Country: "US"},
			want: "500 Main St, Austin, TX 78701, US",
		},
		{
			name: "no country",
			loc:  model.Location{Street: "500 Main St", City: "Austin", State: "TX", Zip: "78701"},
			want: "500 Main St, Austin, TX 78701",
		},
		{
			name: "state without zip",
			loc:  model.Location{City: "Austin", State: "TX"},
			want: "Austin, TX",
		},
		{
			name: "zip without state",
			loc:  model.Location{City: "Austin", Zip: "78701"},
			want: "Austin, 78701",
		},
		{
			name: "whitespace trimmed",
			loc:  model.Location{Street: "  500 Main St ", City: " Austin "},
			want: "500 Main St, Austin",
		},
		{
			name: "empty",
			loc:  model.Location{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayAddress(tt.loc))
		})
	}
}
