package main

import (
	"net/http"

	"mlflow-fargate/policy"
)

// check is one signed request against the gateway together with the
// verdict the permission lattice predicts for it.
type check struct {
	Name        string
	Method      string
	Path        string // relative to policy.APIPrefix
	Body        string
	WantAllowed bool
}

// checksFor is the fixed table each access tier is exercised with. Every
// WantAllowed value must agree with policy.Allows; the test suite keeps
// the two from drifting apart.
func checksFor(role policy.Role) []check {
	switch role {
	case policy.Reader:
		return []check{
			{"list registered models", http.MethodGet, "registered-models/search", "", true},
			{"search runs", http.MethodPost, "runs/search", `{"max_results":1}`, true},
			{"search experiments", http.MethodPost, "experiments/search", `{"max_results":1}`, true},
			{"create run", http.MethodPost, "runs/create", `{"experiment_id":"0"}`, false},
			{"create registered model", http.MethodPost, "registered-models/create", `{"name":"should-be-denied"}`, false},
		}
	case policy.Approver:
		return []check{
			{"list registered models", http.MethodGet, "registered-models/search", "", true},
			{"search runs", http.MethodPost, "runs/search", `{"max_results":1}`, true},
			// Distinct name from the create-twice scenario so an
			// already-exists response on re-runs still counts as allowed.
			{"create registered model", http.MethodPost, "registered-models/create", `{"name":"approver-access-check"}`, true},
			{"update registered model", http.MethodPost, "registered-models/update", `{"name":"california-housing-model","description":"approver probe"}`, true},
			{"transition model version stage", http.MethodPost, "model-versions/transition-stage", `{"name":"california-housing-model","version":"1","stage":"Staging"}`, true},
			{"create run", http.MethodPost, "runs/create", `{"experiment_id":"0"}`, false},
		}
	case policy.Admin:
		return []check{
			{"list registered models", http.MethodGet, "registered-models/search", "", true},
			{"search experiments", http.MethodPost, "experiments/search", `{"max_results":1}`, true},
			{"create run", http.MethodPost, "runs/create", `{"experiment_id":"0"}`, true},
		}
	}
	return nil
}
