package main

import (
	"fmt"
	"os"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const defaultConfigPath = "deployment.yaml"

func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func configPath() string {
	if p := os.Getenv("MLFLOW_DEPLOYMENT_FILE"); p != "" {
		return p
	}
	return defaultConfigPath
}

func resourceTags(cfg *Config, name string) pulumi.StringMap {
	tags := pulumi.StringMap{
		"Name":        pulumi.String(name),
		"Project":     pulumi.String(cfg.Project.Name),
		"Environment": pulumi.String(cfg.Project.Environment),
	}
	for k, v := range cfg.Project.Tags {
		tags[k] = pulumi.String(v)
	}
	return tags
}

func main() {
	cfg, err := LoadConfig(configPath())
	if err != nil {
		processError(err)
	}

	pulumi.Run(func(ctx *pulumi.Context) error {
		nw, err := NewNetwork(ctx, cfg)
		if err != nil {
			return err
		}

		db, err := NewDatabase(ctx, cfg, nw)
		if err != nil {
			return err
		}

		st, err := NewStorage(ctx, cfg)
		if err != nil {
			return err
		}

		lbr, err := NewLoadBalancer(ctx, cfg, nw)
		if err != nil {
			return err
		}

		svc, err := NewService(ctx, cfg, nw, db, st, lbr)
		if err != nil {
			return err
		}

		gw, err := NewGateway(ctx, cfg, lbr)
		if err != nil {
			return err
		}

		ctx.Export("loadBalancerDns", lbr.Lb.DnsName)
		ctx.Export("gatewayInvokeUrl", gw.Stage.InvokeUrl)
		ctx.Export("gatewayExecutionArn", gw.Api.ExecutionArn)
		ctx.Export("artifactBucket", st.ArtifactBucket.Bucket)
		ctx.Export("databaseEndpoint", db.Cluster.Endpoint)
		ctx.Export("databaseSecretArn", db.Secret.Arn)
		ctx.Export("serviceName", svc.Service.Name)
		for role, execRole := range gw.Roles {
			ctx.Export(string(role)+"RoleArn", execRole.Arn)
		}

		return nil
	})
}
