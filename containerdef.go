package main

import (
	"encoding/json"
	"strconv"
)

// containerRuntime carries the resolved resource attributes the container
// definition depends on.
type containerRuntime struct {
	Bucket    string
	DbHost    string
	SecretArn string
	LogGroup  string
	Region    string
}

type containerEnv struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type containerSecret struct {
	Name      string `json:"name"`
	ValueFrom string `json:"valueFrom"`
}

type portMapping struct {
	ContainerPort int    `json:"containerPort"`
	Protocol      string `json:"protocol"`
}

type logConfiguration struct {
	LogDriver string            `json:"logDriver"`
	Options   map[string]string `json:"options"`
}

type containerDefinition struct {
	Name             string            `json:"name"`
	Image            string            `json:"image"`
	Essential        bool              `json:"essential"`
	Environment      []containerEnv    `json:"environment"`
	Secrets          []containerSecret `json:"secrets"`
	PortMappings     []portMapping     `json:"portMappings"`
	LogConfiguration *logConfiguration `json:"logConfiguration,omitempty"`
}

// renderContainerDefinitions builds the task definition's container JSON.
// The image expects BUCKET, HOST, PORT and DATABASE in plain env vars and
// USERNAME/PASSWORD injected from the credentials secret at start.
func renderContainerDefinitions(cfg *Config, rt containerRuntime) (string, error) {
	def := []containerDefinition{
		{
			Name:      cfg.Service.ServiceName,
			Image:     cfg.Service.Image,
			Essential: true,
			Environment: []containerEnv{
				{Name: "BUCKET", Value: "s3://" + rt.Bucket},
				{Name: "HOST", Value: rt.DbHost},
				{Name: "PORT", Value: strconv.Itoa(cfg.Database.Port)},
				{Name: "DATABASE", Value: cfg.Database.Name},
			},
			Secrets: []containerSecret{
				{Name: "USERNAME", ValueFrom: rt.SecretArn + ":username::"},
				{Name: "PASSWORD", ValueFrom: rt.SecretArn + ":password::"},
			},
			PortMappings: []portMapping{
				{ContainerPort: cfg.Service.ContainerPort, Protocol: "tcp"},
			},
			LogConfiguration: &logConfiguration{
				LogDriver: "awslogs",
				Options: map[string]string{
					"awslogs-group":         rt.LogGroup,
					"awslogs-region":        rt.Region,
					"awslogs-stream-prefix": cfg.Service.ServiceName,
				},
			},
		},
	}
	b, err := json.Marshal(def)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
