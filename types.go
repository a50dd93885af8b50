package main

import (
	"fmt"
	"net"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config constructed as input for deployment.yaml
type Config struct {
	Project struct {
		Name        string            `yaml:"name"`
		Environment string            `yaml:"environment"`
		Tags        map[string]string `yaml:"tags"`
	} `yaml:"project"`
	Network struct {
		Cidr string   `yaml:"cidr"`
		Azs  []string `yaml:"azs"`
	} `yaml:"network"`
	Database struct {
		Name             string `yaml:"name"`
		Username         string `yaml:"username"`
		Port             int    `yaml:"port"`
		MinCapacity      int    `yaml:"min_capacity"`
		MaxCapacity      int    `yaml:"max_capacity"`
		AutoPauseMinutes int    `yaml:"auto_pause_minutes"`
	} `yaml:"database"`
	Service struct {
		ClusterName   string  `yaml:"cluster_name"`
		ServiceName   string  `yaml:"service_name"`
		Image         string  `yaml:"image"`
		ContainerPort int     `yaml:"container_port"`
		Cpu           int     `yaml:"cpu"`
		Memory        int     `yaml:"memory"`
		DesiredCount  int     `yaml:"desired_count"`
		MinCount      int     `yaml:"min_count"`
		MaxCount      int     `yaml:"max_count"`
		CpuTarget     float64 `yaml:"cpu_target"`
	} `yaml:"service"`
	Gateway struct {
		Stage string `yaml:"stage"`
	} `yaml:"gateway"`
}

// LoadConfig reads the deployment file, applies MLFLOW_* environment
// overrides on top, and validates the result before any resource is
// declared.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := envconfig.Process("mlflow", &cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects malformed input up front so the provisioning engine
// never sees a half-formed topology.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("project.name is required")
	}
	if _, _, err := net.ParseCIDR(c.Network.Cidr); err != nil {
		return fmt.Errorf("network.cidr %q is not a valid CIDR block", c.Network.Cidr)
	}
	if len(c.Network.Azs) < 2 {
		return fmt.Errorf("network.azs needs at least two availability zones, got %d", len(c.Network.Azs))
	}
	if c.Database.Name == "" || c.Database.Username == "" {
		return fmt.Errorf("database.name and database.username are required")
	}
	if err := validPort("database.port", c.Database.Port); err != nil {
		return err
	}
	if c.Database.MinCapacity < 1 || c.Database.MaxCapacity < c.Database.MinCapacity {
		return fmt.Errorf("database capacity bounds %d..%d are invalid", c.Database.MinCapacity, c.Database.MaxCapacity)
	}
	if c.Database.AutoPauseMinutes < 0 {
		return fmt.Errorf("database.auto_pause_minutes must not be negative")
	}
	if c.Service.ClusterName == "" || c.Service.ServiceName == "" {
		return fmt.Errorf("service.cluster_name and service.service_name are required")
	}
	if c.Service.Image == "" {
		return fmt.Errorf("service.image is required")
	}
	if err := validPort("service.container_port", c.Service.ContainerPort); err != nil {
		return err
	}
	if c.Service.Cpu <= 0 || c.Service.Memory <= 0 {
		return fmt.Errorf("service cpu/memory reservation %d/%d is invalid", c.Service.Cpu, c.Service.Memory)
	}
	if c.Service.MinCount < 1 || c.Service.MaxCount < c.Service.MinCount {
		return fmt.Errorf("service count bounds %d..%d are invalid", c.Service.MinCount, c.Service.MaxCount)
	}
	if c.Service.DesiredCount < c.Service.MinCount || c.Service.DesiredCount > c.Service.MaxCount {
		return fmt.Errorf("service.desired_count %d is outside %d..%d", c.Service.DesiredCount, c.Service.MinCount, c.Service.MaxCount)
	}
	if c.Service.CpuTarget <= 0 || c.Service.CpuTarget > 100 {
		return fmt.Errorf("service.cpu_target %.1f is not a percentage", c.Service.CpuTarget)
	}
	if c.Gateway.Stage == "" {
		return fmt.Errorf("gateway.stage is required")
	}
	return nil
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d is outside 1..65535", field, port)
	}
	return nil
}
