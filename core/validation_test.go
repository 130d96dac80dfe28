package core

import (
	"errors"
	"testing"
)

func TestValidateOrganization(t *testing.T) {
	tests := []struct {
		name    string
		org     *Organization
		wantErr error
	}{
		{
			name:    "valid organization",
			org:     &Organization{Id: 123456789, Name: "Bright Futures", State: "CA"},
			wantErr: nil,
		},
		{
			name:    "valid organization without state",
			org:     &Organization{Id: 1, Name: "Bright Futures"},
			wantErr: nil,
		},
		{
			name:    "nil organization",
			org:     nil,
			wantErr: ErrInvalidOrganization,
		},
		{
			name:    "zero id",
			org:     &Organization{Name: "Bright Futures"},
			wantErr: ErrMissingID,
		},
		{
			name:    "blank name",
			org:     &Organization{Id: 1, Name: "   "},
			wantErr: ErrEmptyName,
		},
		{
			name:    "lower case state",
			org:     &Organization{Id: 1, Name: "Bright Futures", State: "ca"},
			wantErr: ErrInvalidState,
		},
		{
			name:    "long state",
			org:     &Organization{Id: 1, Name: "Bright Futures", State: "California"},
			wantErr: ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrganization(tt.org)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateOrganization() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Errorf("ValidateOrganization() error = nil, want %v", tt.wantErr)
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateOrganization() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
