package telemetry

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRules struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert string `yaml:"alert"`
			Expr  string `yaml:"expr"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

// TestAlertsFileValid verifies the Prometheus alerts configuration parses and
// only references metrics this package exports.
func TestAlertsFileValid(t *testing.T) {
	alertsPath := "../../deploy/prometheus/alerts.yml"

	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
		return
	}

	var rules alertRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		t.Fatalf("Invalid YAML in alerts.yml: %v", err)
	}
	if len(rules.Groups) == 0 {
		t.Fatal("alerts.yml has no groups")
	}

	known := []string{
		"mixtape_ledger_persist_failures_total",
		"mixtape_scoring_faults_total",
		"mixtape_recommendation_requests_total",
		"mixtape_recommendation_duration_seconds",
		"mixtape_autoplay_checks_total",
		"mixtape_api_requests_total",
		"mixtape_eventbus_errors_total",
		"mixtape_eventbus_dropped_total",
	}
	for _, g := range rules.Groups {
		for _, r := range g.Rules {
			if r.Alert == "" || r.Expr == "" {
				t.Errorf("group %s has a rule without alert name or expr", g.Name)
				continue
			}
			found := false
			for _, m := range known {
				if strings.Contains(r.Expr, m) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("alert %s references no known metric: %s", r.Alert, r.Expr)
			}
		}
	}
}
