package domain

import (
	"testing"
)

// FuzzParseRegistrationID feeds path segments from /registrations/{id} into
// the parser. Accepted IDs must be non-nil, canonical and stable through
// text marshalling.
func FuzzParseRegistrationID(f *testing.F) {
	for _, seed := range []string{
		"",
		"3f2b8c1e-4a5d-4e6f-9a0b-1c2d3e4f5a6b",
		"3F2B8C1E-4A5D-4E6F-9A0B-1C2D3E4F5A6B",
		"{3f2b8c1e-4a5d-4e6f-9a0b-1c2d3e4f5a6b}",
		"urn:uuid:3f2b8c1e-4a5d-4e6f-9a0b-1c2d3e4f5a6b",
		"00000000-0000-0000-0000-000000000000",
		"../history",
		"\x00\xff",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		regID, err := ParseRegistrationID(input)
		if err != nil {
			return
		}
		if regID.IsNil() {
			t.Fatalf("accepted nil id from %q", input)
		}
		text, err := regID.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back RegistrationID
		if err := back.UnmarshalText(text); err != nil || back != regID {
			t.Fatalf("text round trip of %q: got %v, err %v", text, back, err)
		}
		if len(regID.String()) != 36 {
			t.Fatalf("non-canonical form %q", regID.String())
		}
	})
}
