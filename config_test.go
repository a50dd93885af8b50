package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testConfig() *Config {
	var cfg Config
	cfg.Project.Name = "mlflow"
	cfg.Project.Environment = "test"
	cfg.Network.Cidr = "10.8.0.0/16"
	cfg.Network.Azs = []string{"us-west-2a", "us-west-2b"}
	cfg.Database.Name = "mlflowdb"
	cfg.Database.Username = "master"
	cfg.Database.Port = 5432
	cfg.Database.MinCapacity = 2
	cfg.Database.MaxCapacity = 16
	cfg.Database.AutoPauseMinutes = 30
	cfg.Service.ClusterName = "mlflow-cluster"
	cfg.Service.ServiceName = "mlflow-server"
	cfg.Service.Image = "ghcr.io/mlflow/mlflow:v2.13.0"
	cfg.Service.ContainerPort = 5000
	cfg.Service.Cpu = 1024
	cfg.Service.Memory = 2048
	cfg.Service.DesiredCount = 2
	cfg.Service.MinCount = 2
	cfg.Service.MaxCount = 6
	cfg.Service.CpuTarget = 70
	cfg.Gateway.Stage = "prod"
	return &cfg
}

const testDeploymentYaml = `project:
  name: mlflow
  environment: test
network:
  cidr: 10.8.0.0/16
  azs: [us-west-2a, us-west-2b]
database:
  name: mlflowdb
  username: master
  port: 5432
  min_capacity: 2
  max_capacity: 16
  auto_pause_minutes: 30
service:
  cluster_name: mlflow-cluster
  service_name: mlflow-server
  image: ghcr.io/mlflow/mlflow:v2.13.0
  container_port: 5000
  cpu: 1024
  memory: 2048
  desired_count: 2
  min_count: 2
  max_count: 6
  cpu_target: 70
gateway:
  stage: prod
`

func writeDeploymentFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeDeploymentFile(t, testDeploymentYaml)
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(testConfig(), got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MLFLOW_DATABASE_PORT", "5433")
	t.Setenv("MLFLOW_GATEWAY_STAGE", "staging")

	path := writeDeploymentFile(t, testDeploymentYaml)
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Database.Port != 5433 {
		t.Errorf("database port override: got %d, want 5433", got.Database.Port)
	}
	if got.Gateway.Stage != "staging" {
		t.Errorf("gateway stage override: got %q, want staging", got.Gateway.Stage)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing deployment file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing project name", func(c *Config) { c.Project.Name = "" }, "project.name"},
		{"bad cidr", func(c *Config) { c.Network.Cidr = "10.8.0.0" }, "network.cidr"},
		{"single az", func(c *Config) { c.Network.Azs = c.Network.Azs[:1] }, "availability zones"},
		{"db port out of range", func(c *Config) { c.Database.Port = 70000 }, "database.port"},
		{"inverted db capacity", func(c *Config) { c.Database.MinCapacity = 32 }, "capacity bounds"},
		{"negative auto pause", func(c *Config) { c.Database.AutoPauseMinutes = -1 }, "auto_pause_minutes"},
		{"missing image", func(c *Config) { c.Service.Image = "" }, "service.image"},
		{"zero container port", func(c *Config) { c.Service.ContainerPort = 0 }, "container_port"},
		{"inverted count bounds", func(c *Config) { c.Service.MinCount = 10 }, "count bounds"},
		{"desired outside bounds", func(c *Config) { c.Service.DesiredCount = 9 }, "desired_count"},
		{"cpu target not a percentage", func(c *Config) { c.Service.CpuTarget = 140 }, "cpu_target"},
		{"missing stage", func(c *Config) { c.Gateway.Stage = "" }, "gateway.stage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
