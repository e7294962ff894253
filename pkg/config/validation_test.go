package config

import (
	"strings"
	"testing"
	"time"

	"github.com/mkarlsen/tenantd/pkg/router"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Blob.Bucket = "tenantd-test"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Valid config rejected: %v", err)
	}
}

func TestValidate_LoggingLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "Level") {
		t.Errorf("Error should name the level field: %v", err)
	}
}

func TestValidate_MissingBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Blob.Bucket = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for missing blob bucket")
	}
}

func TestValidate_SampleRateRange(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for sample rate above 1.0")
	}
}

func TestValidate_PostgresRequiresHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Type = "postgres"
	cfg.Database.Postgres.Database = "tenantd"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for postgres without host")
	}
}

func TestValidate_Subscriptions(t *testing.T) {
	base := func() router.Subscription {
		return router.Subscription{
			Subscriber: "hook",
			Endpoint:   "http://example.com/hook",
			Event:      "tenant:created",
		}
	}

	cases := []struct {
		name   string
		mutate func(*router.Subscription)
	}{
		{"missing name", func(s *router.Subscription) { s.Subscriber = "" }},
		{"missing endpoint", func(s *router.Subscription) { s.Endpoint = "" }},
		{"no trigger", func(s *router.Subscription) {
			s.Event = ""
			s.Condition = nil
			s.Chance = 0
		}},
		{"chance above one", func(s *router.Subscription) { s.Chance = 1.5 }},
		{"unknown condition kind", func(s *router.Subscription) {
			s.Condition = &router.Condition{Kind: "fuzzy"}
		}},
		{"equals without field", func(s *router.Subscription) {
			s.Condition = &router.Condition{Kind: router.CondEquals}
		}},
		{"count without threshold", func(s *router.Subscription) {
			s.Condition = &router.Condition{Kind: router.CondCountAtLeast}
		}},
		{"elapsed without duration", func(s *router.Subscription) {
			s.Condition = &router.Condition{Kind: router.CondElapsed, Field: "created_at"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			sub := base()
			tc.mutate(&sub)
			cfg.Router.Subscriptions = []router.Subscription{sub}

			if err := Validate(cfg); err == nil {
				t.Fatal("Expected validation error")
			}
		})
	}

	t.Run("duplicate subscriber", func(t *testing.T) {
		cfg := validConfig()
		cfg.Router.Subscriptions = []router.Subscription{base(), base()}

		if err := Validate(cfg); err == nil {
			t.Fatal("Expected error for duplicate subscriber")
		}
	})

	t.Run("valid table", func(t *testing.T) {
		cfg := validConfig()
		cfg.Router.Subscriptions = []router.Subscription{
			base(),
			{
				Subscriber: "reviewer",
				Endpoint:   "http://example.com/review",
				Condition: &router.Condition{
					Kind:  router.CondCountAtLeast,
					Queue: "review",
					Count: 5,
				},
			},
			{
				Subscriber: "sampler",
				Endpoint:   "http://example.com/sample",
				Chance:     0.1,
			},
			{
				Subscriber: "reaper",
				Endpoint:   "http://example.com/reap",
				Condition: &router.Condition{
					Kind:    router.CondElapsed,
					Field:   "created_at",
					Elapsed: 24 * time.Hour,
				},
			},
		}

		if err := Validate(cfg); err != nil {
			t.Fatalf("Valid subscriber table rejected: %v", err)
		}
	})
}
