package errors

import (
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "openssl", false},
		{"valid with underscore", "nlohmann_json", false},
		{"valid with dash", "lib-foo", false},
		{"valid with dot", "qt.base", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 300)), true},
		{"uppercase", "Boost", true},
		{"slash", "boost/1.84.0", true},
		{"path traversal", "..", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"1.84.0", false},
		{"0.9.9.8", false},
		{"cci.20230101", false},
		{"", true},
		{"1.0 beta", true},
		{"../1", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid patch", "patches/static-no-exclude-for-all.patch", false},
		{"valid dotted name", "patches/fix..name.patch", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"traversal", "patches/../../secret", true},
		{"backslash", "patches\\a.patch", true},
		{"null", "a\x00b", true},
		{"too long", string(make([]byte, 600)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSourceURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://github.com/paullouisageneau/libdatachannel.git", false},
		{"ssh", "ssh://git@example.com/repo.git", false},
		{"scp-like", "git@github.com:paullouisageneau/libdatachannel.git", false},
		{"file", "file:///srv/mirror/libdatachannel", false},
		{"absolute local", "/srv/mirror/libdatachannel", false},

		{"empty", "", true},
		{"scheme only", "https://", true},
		{"unsupported scheme", "ftp://example.com/repo", true},
		{"relative local", "mirror/libdatachannel", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSourceURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
