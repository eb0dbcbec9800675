package identity

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain international", in: "+447911123456", want: "+447911123456"},
		{name: "no plus", in: "447911123456", want: "+447911123456"},
		{name: "whatsapp prefix", in: "whatsapp:+447911123456", want: "+447911123456"},
		{name: "spaces and dashes", in: "+44 7911-123 456", want: "+447911123456"},
		{name: "parenthesized", in: "+1 (555) 010-2345", want: "+15550102345"},
		{name: "too short", in: "+1234", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "letters only", in: "not-a-number", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("expected ErrInvalidAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProxyAddressRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec("wa.example.com")
	addresses := []string{
		"+447911123456",
		"whatsapp:+5511998765432",
		"1 (555) 010-2345",
		"+8613800138000",
	}

	for _, addr := range addresses {
		proxy, err := codec.ToProxyAddress(addr)
		if err != nil {
			t.Fatalf("ToProxyAddress(%q): %v", addr, err)
		}
		normalized, err := Normalize(addr)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", addr, err)
		}
		if got := codec.FromProxyAddress(proxy); got != normalized {
			t.Fatalf("round trip for %q: got %q, want %q", addr, got, normalized)
		}
	}
}

func TestFromProxyAddressRecognizer(t *testing.T) {
	t.Parallel()

	codec := NewCodec("wa.example.com")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "match", in: "447911123456@wa.example.com", want: "+447911123456"},
		{name: "case insensitive domain", in: "447911123456@WA.Example.COM", want: "+447911123456"},
		{name: "foreign domain", in: "447911123456@other.example.com", want: ""},
		{name: "non numeric local part", in: "support@wa.example.com", want: ""},
		{name: "short local part", in: "12345@wa.example.com", want: ""},
		{name: "no at sign", in: "447911123456", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := codec.FromProxyAddress(tt.in); got != tt.want {
				t.Fatalf("FromProxyAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
