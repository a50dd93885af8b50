// Package policy models the tracking server's caller permissions as data.
// Each role carries an explicit allow-list of (HTTP method, path pattern)
// pairs over the server's REST surface; the same list drives both the IAM
// policy documents attached to the execution roles and the expectations of
// the access verifier. Keeping one source makes the lattice's subset
// invariant (reader ⊂ approver ⊂ admin) checkable by a test.
package policy

import (
	"fmt"
	"strings"
)

// APIPrefix is the tracking server's versioned REST prefix. Rule paths are
// relative to it.
const APIPrefix = "api/2.0/mlflow/"

// Role is a caller identity tier.
type Role string

const (
	Reader   Role = "reader"
	Approver Role = "approver"
	Admin    Role = "admin"
)

// Roles lists the tiers from least to most privileged.
func Roles() []Role {
	return []Role{Reader, Approver, Admin}
}

// Rule allows one HTTP method on one path pattern. A method of "*" matches
// any method; a path of "*" matches any path; a path ending in "/*"
// matches any suffix under that segment.
type Rule struct {
	Method string
	Path   string
}

// Matches reports whether the rule admits the given request. The path may
// carry the APIPrefix or a leading slash; both are normalized away.
func (r Rule) Matches(method, path string) bool {
	if r.Method != "*" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return matchPath(r.Path, normalize(path))
}

func matchPath(pattern, path string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == path
}

func normalize(path string) string {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimPrefix(path, APIPrefix)
	return strings.TrimSuffix(path, "/")
}

// AllowList returns a fresh copy of the role's allow-list. Unknown roles
// get an empty list, which denies everything.
func AllowList(role Role) []Rule {
	switch role {
	case Reader:
		return readerRules()
	case Approver:
		// Approvers keep every reader permission and gain the model
		// registry write paths. runs/create stays out of reach.
		return append(readerRules(),
			Rule{Method: "POST", Path: "model-versions/*"},
			Rule{Method: "POST", Path: "registered-models/*"},
		)
	case Admin:
		return []Rule{{Method: "*", Path: "*"}}
	}
	return nil
}

func readerRules() []Rule {
	return []Rule{
		{Method: "GET", Path: "*"},
		{Method: "POST", Path: "runs/search"},
		{Method: "POST", Path: "experiments/search"},
	}
}

// Allows reports whether the role may invoke method on path. Anything not
// explicitly allowed is denied.
func Allows(role Role, method, path string) bool {
	for _, rule := range AllowList(role) {
		if rule.Matches(method, path) {
			return true
		}
	}
	return false
}

// InvokeArn renders the execute-api resource ARN a rule grants, under the
// gateway's execution ARN and stage.
func InvokeArn(executionArn, stage string, r Rule) string {
	if r.Path == "*" {
		return fmt.Sprintf("%s/%s/%s/*", executionArn, stage, r.Method)
	}
	return fmt.Sprintf("%s/%s/%s/%s%s", executionArn, stage, r.Method, APIPrefix, r.Path)
}
