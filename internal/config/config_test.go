package config_test

import (
	"strings"
	"testing"

	"loomline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.WeeklyCapacity(); got != 200 {
		t.Fatalf("weekly capacity = %v, want 200 (5 machines x 8h x 5d)", got)
	}
	if len(cfg.Catalog.Seed) != 4 {
		t.Fatalf("seed catalog has %d products, want 4", len(cfg.Catalog.Seed))
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "zero machines",
			yaml: strings.Replace(config.GenerateDefault(), "machines: 5", "machines: 0", 1),
			want: "machines",
		},
		{
			name: "bad hours per day",
			yaml: strings.Replace(config.GenerateDefault(), "hours_per_day: 8", "hours_per_day: 25", 1),
			want: "hours_per_day",
		},
		{
			name: "bad access date",
			yaml: strings.Replace(config.GenerateDefault(), "access_until: 2026-12-31", "access_until: 31/12/2026", 1),
			want: "access_until",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDuplicateUserRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Users = append(cfg.Auth.Users, config.User{Username: "admin", Password: "x"})
	if err := cfg.Validate(); err == nil {
		t.Fatalf("duplicate username must be rejected")
	}
}
