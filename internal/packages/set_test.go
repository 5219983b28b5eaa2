// SPDX-License-Identifier: MPL-2.0

package packages

import (
	"errors"
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"libgl1-mesa-glx", false},
		{"wget", false},
		{"libstdc++6", false},
		{"python3.8", false},
		{"a", true},
		{"Wget", true},
		{"-wget", true},
		{"wget unzip", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPackageName) {
				t.Errorf("errors.Is(err, ErrInvalidPackageName) = false")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	set, err := Merge([]string{"libgl1-mesa-glx", "wget"}, []string{"wget", "unzip", " libgl1-mesa-glx "})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := []string{"libgl1-mesa-glx", "wget", "unzip"}
	if got := set.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if set.Len() != 3 || !set.Contains("unzip") || set.Contains("curl") {
		t.Errorf("unexpected set %v", set)
	}
	if set.String() != "libgl1-mesa-glx wget unzip" {
		t.Errorf("String() = %q", set.String())
	}
}

func TestNewSet_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := NewSet("wget", "Bad Name"); !errors.Is(err, ErrInvalidPackageName) {
		t.Errorf("NewSet() error = %v, want ErrInvalidPackageName", err)
	}
}

func TestSet_Names_IsCopy(t *testing.T) {
	t.Parallel()

	set, _ := NewSet("wget")
	names := set.Names()
	names[0] = "curl"
	if set.Names()[0] != "wget" {
		t.Error("Names() exposed internal storage")
	}
}

func TestSet_YAML(t *testing.T) {
	t.Parallel()

	set, _ := NewSet("libgl1-mesa-glx", "unzip")
	data, err := yaml.Marshal(struct {
		Packages Set `yaml:"packages"`
	}{set})
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}

	var decoded struct {
		Packages Set `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if !slices.Equal(decoded.Packages.Names(), set.Names()) {
		t.Errorf("decoded = %v, want %v", decoded.Packages.Names(), set.Names())
	}

	if err := yaml.Unmarshal([]byte("packages: [wget, wget, NOPE]"), &decoded); !errors.Is(err, ErrInvalidPackageName) {
		t.Errorf("yaml.Unmarshal(invalid) error = %v", err)
	}
}
