package hostport_test

import (
	"testing"

	"camliup/internal/hostport"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantHost  string
		wantPort  int
		wantValid bool
	}{
		{name: "host and port", input: "localhost:3179", wantHost: "localhost", wantPort: 3179, wantValid: true},
		{name: "host only defaults port", input: "localhost", wantHost: "localhost", wantPort: 80, wantValid: true},
		{name: "double colon", input: "localhost::3179", wantHost: "", wantPort: 0, wantValid: false},
		{name: "empty", input: "", wantValid: false},
		{name: "whitespace", input: "   ", wantValid: false},
		{name: "missing host", input: ":3179", wantValid: false},
		{name: "non numeric port", input: "localhost:abc", wantValid: false},
		{name: "port out of range", input: "localhost:70000", wantValid: false},
		{name: "signed port", input: "localhost:+80", wantValid: false},
		{name: "port with space", input: "localhost: 80", wantValid: false},
		{name: "zero port", input: "localhost:0", wantValid: false},
		{name: "empty port", input: "localhost:", wantValid: false},
		{name: "surrounding whitespace", input: " blobs.example.com:8080 ", wantHost: "blobs.example.com", wantPort: 8080, wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp := hostport.Parse(tt.input)
			if hp.Valid() != tt.wantValid {
				t.Fatalf("Valid() = %v, want %v", hp.Valid(), tt.wantValid)
			}
			if hp.Host() != tt.wantHost {
				t.Fatalf("Host() = %q, want %q", hp.Host(), tt.wantHost)
			}
			if hp.Port() != tt.wantPort {
				t.Fatalf("Port() = %d, want %d", hp.Port(), tt.wantPort)
			}
		})
	}
}

func TestURL(t *testing.T) {
	hp := hostport.Parse("localhost")
	if got := hp.URL("/camli/upload"); got != "http://localhost:80/camli/upload" {
		t.Fatalf("unexpected url: %q", got)
	}
	if got := hp.URL("camli/preupload"); got != "http://localhost:80/camli/preupload" {
		t.Fatalf("unexpected url without leading slash: %q", got)
	}
	if got := hostport.Parse("localhost::1").URL("/camli/upload"); got != "" {
		t.Fatalf("expected empty url for invalid address, got %q", got)
	}
}
