package main

import "testing"

func TestDeploymentFingerprintDeterministic(t *testing.T) {
	a, err := deploymentFingerprint("http://nlb.internal/{proxy}", "AWS_IAM", "vpclink-1")
	if err != nil {
		t.Fatalf("deploymentFingerprint: %v", err)
	}
	b, err := deploymentFingerprint("http://nlb.internal/{proxy}", "AWS_IAM", "vpclink-1")
	if err != nil {
		t.Fatalf("deploymentFingerprint: %v", err)
	}
	if a != b {
		t.Errorf("same wiring produced different fingerprints: %s vs %s", a, b)
	}
}

// Any change to the gateway wiring must surface as a new fingerprint so
// the stage picks up a fresh deployment snapshot.
func TestDeploymentFingerprintTracksWiring(t *testing.T) {
	base, err := deploymentFingerprint("http://nlb.internal/{proxy}", "AWS_IAM", "vpclink-1")
	if err != nil {
		t.Fatalf("deploymentFingerprint: %v", err)
	}
	changed := [][]interface{}{
		{"http://other.internal/{proxy}", "AWS_IAM", "vpclink-1"},
		{"http://nlb.internal/{proxy}", "NONE", "vpclink-1"},
		{"http://nlb.internal/{proxy}", "AWS_IAM", "vpclink-2"},
	}
	for _, parts := range changed {
		got, err := deploymentFingerprint(parts...)
		if err != nil {
			t.Fatalf("deploymentFingerprint(%v): %v", parts, err)
		}
		if got == base {
			t.Errorf("wiring change %v did not change the fingerprint", parts)
		}
	}
}
