package observability

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	jobmetrics "github.com/odyssey-erp/retail-ledger/internal/jobs"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`ledger_[a-z_]+`)

func repoFile(t *testing.T, parts ...string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(append([]string{"..", ".."}, parts...)...))
	require.NoError(t, err)
	return data
}

// knownMetrics lists every metric family the API and worker register.
func knownMetrics(t *testing.T) map[string]bool {
	t.Helper()
	reg := prometheus.NewRegistry()
	jobs := jobmetrics.NewMetrics(reg)
	jobs.Track("alert_rules").End(nil)
	jobs.AddViolations("alert_rules", 1)

	m := NewMetrics()
	m.SequenceAllocated("INV")
	m.EntriesPosted("SALES", 1)
	m.TrialBalanceComputed(0, true)
	m.TxRetried(true)
	m.requestsTotal.WithLabelValues("GET", "/", "200").Inc()

	names := map[string]bool{}
	for _, g := range []prometheus.Gatherer{reg, m.registry} {
		families, err := g.Gather()
		require.NoError(t, err)
		for _, mf := range families {
			names[mf.GetName()] = true
		}
	}
	return names
}

func TestLedgerAlertRules(t *testing.T) {
	var file alertFile
	require.NoError(t, yaml.Unmarshal(repoFile(t, "deploy", "prometheus", "alerts", "ledger.yml"), &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "ledger", file.Groups[0].Name)

	severities := map[string]string{
		"TrialBalanceUnbalanced": "critical",
		"TxRetriesExhausted":     "warning",
		"HighErrorRate":          "critical",
		"IntegrityViolations":    "critical",
		"JobFailures":            "warning",
	}
	rules := file.Groups[0].Rules
	require.Len(t, rules, len(severities))

	runbook := string(repoFile(t, "docs", "runbook-ledger.md"))
	known := knownMetrics(t)

	for _, rule := range rules {
		t.Run(rule.Alert, func(t *testing.T) {
			want, ok := severities[rule.Alert]
			require.True(t, ok, "unexpected rule")
			assert.Equal(t, want, rule.Labels["severity"])
			assert.NotEmpty(t, rule.For)
			assert.NotEmpty(t, rule.Annotations["summary"])
			assert.NotEmpty(t, rule.Annotations["description"])

			link := rule.Annotations["runbook"]
			anchor, found := strings.CutPrefix(link, "docs/runbook-ledger.md#")
			require.True(t, found, "runbook link %q", link)
			assert.Contains(t, runbook, "## "+anchor)

			used := metricName.FindAllString(rule.Expr, -1)
			require.NotEmpty(t, used)
			for _, name := range used {
				assert.True(t, known[name], "expression uses unregistered metric %s", name)
			}
		})
	}
}
