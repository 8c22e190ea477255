package atproto

import (
	"errors"
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    URI
		wantErr bool
	}{
		{
			name:  "record uri",
			input: "at://did:plc:abc/social.octosphere.publication/octopus-pub-1",
			want:  URI{Repo: "did:plc:abc", Collection: "social.octosphere.publication", RKey: "octopus-pub-1"},
		},
		{name: "wrong scheme", input: "https://invalid-uri", wantErr: true},
		{name: "missing rkey", input: "at://did:plc:test/collection", wantErr: true},
		{name: "empty collection", input: "at://did:plc:test//rkey", wantErr: true},
		{name: "too many segments", input: "at://did/coll/rkey/extra", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURI(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidReference) {
					t.Errorf("ParseURI(%q) error = %v, want ErrInvalidReference", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseURI(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}
