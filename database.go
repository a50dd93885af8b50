package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/rds"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/secretsmanager"
	"github.com/pulumi/pulumi-random/sdk/v4/go/random"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Database is the serverless Aurora cluster holding the tracking server's
// metadata, plus the secret its credentials live in. The cluster sits in
// the isolated subnets and is reachable only from the VPC range.
type Database struct {
	Cluster       *rds.Cluster
	Secret        *secretsmanager.Secret
	SecurityGroup *ec2.SecurityGroup
}

// databaseIngress is the complete ingress rule set for the database tier.
// Anything beyond the internal CIDR on the database port is a defect.
func databaseIngress(cfg *Config) []ingressRule {
	return []ingressRule{
		{
			Protocol:    "tcp",
			FromPort:    cfg.Database.Port,
			ToPort:      cfg.Database.Port,
			Cidr:        cfg.Network.Cidr,
			Description: "postgres from inside the VPC only",
		},
	}
}

func NewDatabase(ctx *pulumi.Context, cfg *Config, nw *Network) (*Database, error) {
	name := cfg.Project.Name

	password, err := random.NewRandomPassword(ctx, name+"-db-password", &random.RandomPasswordArgs{
		Length:  pulumi.Int(32),
		Special: pulumi.Bool(false),
	})
	if err != nil {
		return nil, err
	}

	secret, err := secretsmanager.NewSecret(ctx, name+"-db-credentials", &secretsmanager.SecretArgs{
		NamePrefix:  pulumi.String(name + "-db-credentials-"),
		Description: pulumi.String("Tracking store master credentials"),
		Tags:        resourceTags(cfg, name+"-db-credentials"),
	})
	if err != nil {
		return nil, err
	}
	// The password only ever exists inside this secret; the container
	// receives it through a secret reference, never as a plain env var.
	_, err = secretsmanager.NewSecretVersion(ctx, name+"-db-credentials-value", &secretsmanager.SecretVersionArgs{
		SecretId:     secret.ID(),
		SecretString: pulumi.Sprintf(`{"username":"%s","password":"%s"}`, cfg.Database.Username, password.Result),
	})
	if err != nil {
		return nil, err
	}

	sg, err := ec2.NewSecurityGroup(ctx, name+"-db-sg", &ec2.SecurityGroupArgs{
		VpcId:       nw.Vpc.ID(),
		Description: pulumi.String("tracking store access"),
		Ingress:     toIngressArray(databaseIngress(cfg)),
		Egress:      allEgress(),
		Tags:        resourceTags(cfg, name+"-db-sg"),
	})
	if err != nil {
		return nil, err
	}

	subnetGroup, err := rds.NewSubnetGroup(ctx, name+"-db-subnets", &rds.SubnetGroupArgs{
		SubnetIds: subnetIDs(nw.IsolatedSubnets),
		Tags:      resourceTags(cfg, name+"-db-subnets"),
	})
	if err != nil {
		return nil, err
	}

	scaling := &rds.ClusterScalingConfigurationArgs{
		AutoPause:   pulumi.Bool(cfg.Database.AutoPauseMinutes > 0),
		MinCapacity: pulumi.Int(cfg.Database.MinCapacity),
		MaxCapacity: pulumi.Int(cfg.Database.MaxCapacity),
	}
	if cfg.Database.AutoPauseMinutes > 0 {
		scaling.SecondsUntilAutoPause = pulumi.Int(cfg.Database.AutoPauseMinutes * 60)
	}

	cluster, err := rds.NewCluster(ctx, name+"-db", &rds.ClusterArgs{
		ClusterIdentifier:    pulumi.String(name + "-tracking-store"),
		Engine:               pulumi.String("aurora-postgresql"),
		EngineMode:           pulumi.String("serverless"),
		DatabaseName:         pulumi.String(cfg.Database.Name),
		MasterUsername:       pulumi.String(cfg.Database.Username),
		MasterPassword:       password.Result,
		Port:                 pulumi.Int(cfg.Database.Port),
		DbSubnetGroupName:    subnetGroup.Name,
		VpcSecurityGroupIds:  pulumi.StringArray{sg.ID()},
		ScalingConfiguration: scaling,
		StorageEncrypted:     pulumi.Bool(true),
		SkipFinalSnapshot:    pulumi.Bool(true),
		Tags:                 resourceTags(cfg, name+"-tracking-store"),
	})
	if err != nil {
		return nil, err
	}

	return &Database{Cluster: cluster, Secret: secret, SecurityGroup: sg}, nil
}
