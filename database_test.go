package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// The database tier must never admit traffic from outside the declared
// internal range; any rule beyond this single one is a configuration
// defect.
func TestDatabaseIngress(t *testing.T) {
	cfg := testConfig()
	want := []ingressRule{
		{
			Protocol:    "tcp",
			FromPort:    5432,
			ToPort:      5432,
			Cidr:        "10.8.0.0/16",
			Description: "postgres from inside the VPC only",
		},
	}
	if diff := cmp.Diff(want, databaseIngress(cfg)); diff != "" {
		t.Errorf("database ingress (-want +got):\n%s", diff)
	}
}

func TestDatabaseIngressTracksConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Network.Cidr = "172.16.0.0/16"
	cfg.Database.Port = 5433

	for _, rule := range databaseIngress(cfg) {
		if rule.Cidr != cfg.Network.Cidr {
			t.Errorf("rule admits %s, want only %s", rule.Cidr, cfg.Network.Cidr)
		}
		if rule.FromPort != cfg.Database.Port || rule.ToPort != cfg.Database.Port {
			t.Errorf("rule covers ports %d-%d, want only %d", rule.FromPort, rule.ToPort, cfg.Database.Port)
		}
	}
}
