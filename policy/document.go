package policy

import "encoding/json"

type statement struct {
	Effect   string   `json:"Effect"`
	Action   string   `json:"Action"`
	Resource []string `json:"Resource"`
}

type document struct {
	Version   string      `json:"Version"`
	Statement []statement `json:"Statement"`
}

// Document renders the role's IAM policy: execute-api:Invoke over exactly
// the method/path ARNs its allow-list names. Denial is the default; no
// explicit Deny statements are emitted.
func Document(role Role, executionArn, stage string) (string, error) {
	rules := AllowList(role)
	resources := make([]string, 0, len(rules))
	for _, r := range rules {
		resources = append(resources, InvokeArn(executionArn, stage, r))
	}
	doc := document{
		Version: "2012-10-17",
		Statement: []statement{
			{
				Effect:   "Allow",
				Action:   "execute-api:Invoke",
				Resource: resources,
			},
		},
	}
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
