package main

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestServiceIngress(t *testing.T) {
	cfg := testConfig()
	rules := serviceIngress(cfg)
	if len(rules) != 1 {
		t.Fatalf("got %d ingress rules, want 1", len(rules))
	}
	rule := rules[0]
	if rule.Cidr != cfg.Network.Cidr {
		t.Errorf("rule admits %s, want only the internal range %s", rule.Cidr, cfg.Network.Cidr)
	}
	if rule.FromPort != cfg.Service.ContainerPort || rule.ToPort != cfg.Service.ContainerPort {
		t.Errorf("rule covers ports %d-%d, want only %d", rule.FromPort, rule.ToPort, cfg.Service.ContainerPort)
	}
}

func TestRenderContainerDefinitions(t *testing.T) {
	cfg := testConfig()
	rt := containerRuntime{
		Bucket:    "mlflow-artifacts-abc123",
		DbHost:    "mlflow-tracking-store.cluster-xyz.us-west-2.rds.amazonaws.com",
		SecretArn: "arn:aws:secretsmanager:us-west-2:123456789012:secret:mlflow-db-credentials-AbCdEf",
		LogGroup:  "/ecs/mlflow-server-xyz",
		Region:    "us-west-2",
	}

	rendered, err := renderContainerDefinitions(cfg, rt)
	if err != nil {
		t.Fatalf("renderContainerDefinitions: %v", err)
	}
	var defs []containerDefinition
	if err := json.Unmarshal([]byte(rendered), &defs); err != nil {
		t.Fatalf("rendered JSON does not parse: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("got %d container definitions, want 1", len(defs))
	}
	def := defs[0]

	if def.Name != cfg.Service.ServiceName || def.Image != cfg.Service.Image {
		t.Errorf("container is %s/%s, want %s/%s", def.Name, def.Image, cfg.Service.ServiceName, cfg.Service.Image)
	}
	if !def.Essential {
		t.Error("container must be essential")
	}

	wantEnv := []containerEnv{
		{Name: "BUCKET", Value: "s3://" + rt.Bucket},
		{Name: "HOST", Value: rt.DbHost},
		{Name: "PORT", Value: "5432"},
		{Name: "DATABASE", Value: cfg.Database.Name},
	}
	if diff := cmp.Diff(wantEnv, def.Environment); diff != "" {
		t.Errorf("environment (-want +got):\n%s", diff)
	}

	wantSecrets := []containerSecret{
		{Name: "USERNAME", ValueFrom: rt.SecretArn + ":username::"},
		{Name: "PASSWORD", ValueFrom: rt.SecretArn + ":password::"},
	}
	if diff := cmp.Diff(wantSecrets, def.Secrets); diff != "" {
		t.Errorf("secrets (-want +got):\n%s", diff)
	}

	wantPorts := []portMapping{{ContainerPort: 5000, Protocol: "tcp"}}
	if diff := cmp.Diff(wantPorts, def.PortMappings); diff != "" {
		t.Errorf("port mappings (-want +got):\n%s", diff)
	}

	if def.LogConfiguration == nil || def.LogConfiguration.LogDriver != "awslogs" {
		t.Fatal("container must log through awslogs")
	}
	if got := def.LogConfiguration.Options["awslogs-group"]; got != rt.LogGroup {
		t.Errorf("awslogs-group = %q, want %q", got, rt.LogGroup)
	}
	if got := def.LogConfiguration.Options["awslogs-region"]; got != rt.Region {
		t.Errorf("awslogs-region = %q, want %q", got, rt.Region)
	}
}

// The password reaches the container only as a secret reference; the
// plain environment must never carry it.
func TestContainerEnvironmentCarriesNoCredentials(t *testing.T) {
	cfg := testConfig()
	rendered, err := renderContainerDefinitions(cfg, containerRuntime{
		Bucket:    "bucket",
		DbHost:    "host",
		SecretArn: "arn:aws:secretsmanager:us-west-2:123456789012:secret:creds",
		LogGroup:  "/ecs/test",
		Region:    "us-west-2",
	})
	if err != nil {
		t.Fatalf("renderContainerDefinitions: %v", err)
	}
	var defs []containerDefinition
	if err := json.Unmarshal([]byte(rendered), &defs); err != nil {
		t.Fatal(err)
	}
	for _, env := range defs[0].Environment {
		if env.Name == "USERNAME" || env.Name == "PASSWORD" {
			t.Errorf("credential %s leaked into the plain environment", env.Name)
		}
	}
}
