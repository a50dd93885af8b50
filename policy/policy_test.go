package policy

import (
	"net/http"
	"testing"
)

type request struct {
	method string
	path   string
}

// requestCorpus is a representative slice of the tracking server's REST
// surface, used to check the lattice ordering.
var requestCorpus = []request{
	{http.MethodGet, "experiments/get"},
	{http.MethodGet, "runs/get"},
	{http.MethodGet, "registered-models/search"},
	{http.MethodGet, "model-versions/get"},
	{http.MethodGet, "metrics/get-history"},
	{http.MethodPost, "runs/search"},
	{http.MethodPost, "experiments/search"},
	{http.MethodPost, "runs/create"},
	{http.MethodPost, "runs/update"},
	{http.MethodPost, "runs/log-metric"},
	{http.MethodPost, "experiments/create"},
	{http.MethodPost, "registered-models/create"},
	{http.MethodPost, "registered-models/update"},
	{http.MethodPost, "registered-models/rename"},
	{http.MethodPost, "model-versions/create"},
	{http.MethodPost, "model-versions/transition-stage"},
	{http.MethodDelete, "experiments/delete"},
}

func TestReaderAllows(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "experiments/get", true},
		{http.MethodGet, "registered-models/search", true},
		{http.MethodGet, "anything/at/all", true},
		{http.MethodPost, "runs/search", true},
		{http.MethodPost, "experiments/search", true},
		{http.MethodPost, "runs/create", false},
		{http.MethodPost, "runs/searching", false},
		{http.MethodPost, "registered-models/create", false},
		{http.MethodPost, "model-versions/create", false},
		{http.MethodDelete, "experiments/delete", false},
	}
	for _, tc := range cases {
		if got := Allows(Reader, tc.method, tc.path); got != tc.want {
			t.Errorf("Allows(reader, %s, %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestApproverAllows(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "experiments/get", true},
		{http.MethodPost, "runs/search", true},
		{http.MethodPost, "registered-models/create", true},
		{http.MethodPost, "registered-models/update", true},
		{http.MethodPost, "model-versions/create", true},
		{http.MethodPost, "model-versions/transition-stage", true},
		{http.MethodPost, "runs/create", false},
		{http.MethodPost, "runs/log-metric", false},
		{http.MethodPost, "experiments/create", false},
		{http.MethodDelete, "registered-models/delete", false},
	}
	for _, tc := range cases {
		if got := Allows(Approver, tc.method, tc.path); got != tc.want {
			t.Errorf("Allows(approver, %s, %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestAdminAllowsEverything(t *testing.T) {
	for _, req := range requestCorpus {
		if !Allows(Admin, req.method, req.path) {
			t.Errorf("Allows(admin, %s, %s) = false, want true", req.method, req.path)
		}
	}
}

// Every request a tier allows must also be allowed by the tier above it.
func TestLatticeMonotonicity(t *testing.T) {
	tiers := Roles()
	for i := 0; i+1 < len(tiers); i++ {
		lower, upper := tiers[i], tiers[i+1]
		for _, req := range requestCorpus {
			if Allows(lower, req.method, req.path) && !Allows(upper, req.method, req.path) {
				t.Errorf("%s allows %s %s but %s does not", lower, req.method, req.path, upper)
			}
		}
	}
}

func TestUnknownRoleDeniesEverything(t *testing.T) {
	for _, req := range requestCorpus {
		if Allows(Role("auditor"), req.method, req.path) {
			t.Errorf("unknown role allows %s %s", req.method, req.path)
		}
	}
}

func TestMatchesNormalizesPaths(t *testing.T) {
	rule := Rule{Method: "POST", Path: "runs/search"}
	for _, path := range []string{
		"runs/search",
		"/runs/search",
		"api/2.0/mlflow/runs/search",
		"/api/2.0/mlflow/runs/search",
		"runs/search/",
	} {
		if !rule.Matches(http.MethodPost, path) {
			t.Errorf("rule does not match %q", path)
		}
	}
	if rule.Matches(http.MethodPost, "runs/search/extra") {
		t.Error("rule matched a longer path")
	}
}
