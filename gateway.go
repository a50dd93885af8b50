package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mlflow-fargate/policy"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/apigateway"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const sagemakerAssumeRolePolicy = `{
    "Version": "2012-10-17",
    "Statement": [{
        "Sid": "",
        "Effect": "Allow",
        "Principal": {
            "Service": "sagemaker.amazonaws.com"
        },
        "Action": "sts:AssumeRole"
    }]
}`

// Gateway is the IAM-authorizing front door. Every request is signed by
// the caller's execution role and evaluated against that role's attached
// policy before the tracking server ever sees it; denied calls come back
// as authorization errors naming the action and resource ARN.
type Gateway struct {
	Api   *apigateway.RestApi
	Stage *apigateway.Stage
	Roles map[policy.Role]*iam.Role
}

func NewGateway(ctx *pulumi.Context, cfg *Config, lbr *LoadBalancer) (*Gateway, error) {
	name := cfg.Project.Name

	vpcLink, err := apigateway.NewVpcLink(ctx, name+"-vpc-link", &apigateway.VpcLinkArgs{
		TargetArn:   lbr.Lb.Arn,
		Description: pulumi.String("gateway to internal tracking server"),
		Tags:        resourceTags(cfg, name+"-vpc-link"),
	})
	if err != nil {
		return nil, err
	}

	api, err := apigateway.NewRestApi(ctx, name+"-gateway", &apigateway.RestApiArgs{
		Name:        pulumi.String(name + "-tracking"),
		Description: pulumi.String("IAM-gated front door for the tracking server"),
		EndpointConfiguration: &apigateway.RestApiEndpointConfigurationArgs{
			Types: pulumi.String("REGIONAL"),
		},
		Tags: resourceTags(cfg, name+"-gateway"),
	})
	if err != nil {
		return nil, err
	}

	proxy, err := apigateway.NewResource(ctx, name+"-proxy", &apigateway.ResourceArgs{
		RestApi:  api.ID(),
		ParentId: api.RootResourceId,
		PathPart: pulumi.String("{proxy+}"),
	})
	if err != nil {
		return nil, err
	}

	method, err := apigateway.NewMethod(ctx, name+"-proxy-any", &apigateway.MethodArgs{
		RestApi:       api.ID(),
		ResourceId:    proxy.ID(),
		HttpMethod:    pulumi.String("ANY"),
		Authorization: pulumi.String("AWS_IAM"),
		RequestParameters: pulumi.BoolMap{
			"method.request.path.proxy": pulumi.Bool(true),
		},
	})
	if err != nil {
		return nil, err
	}

	integration, err := apigateway.NewIntegration(ctx, name+"-proxy-integration", &apigateway.IntegrationArgs{
		RestApi:               api.ID(),
		ResourceId:            proxy.ID(),
		HttpMethod:            method.HttpMethod,
		IntegrationHttpMethod: pulumi.String("ANY"),
		Type:                  pulumi.String("HTTP_PROXY"),
		ConnectionType:        pulumi.String("VPC_LINK"),
		ConnectionId:          vpcLink.ID(),
		Uri:                   pulumi.Sprintf("http://%s/{proxy}", lbr.Lb.DnsName),
		RequestParameters: pulumi.StringMap{
			"integration.request.path.proxy": pulumi.String("method.request.path.proxy"),
		},
	})
	if err != nil {
		return nil, err
	}

	// A deployment is a frozen snapshot; without a trigger, later method
	// or integration changes re-diff those resources but the stage keeps
	// serving the old snapshot.
	redeployment := pulumi.All(integration.Uri, method.Authorization, vpcLink.ID()).ApplyT(func(args []interface{}) (string, error) {
		return deploymentFingerprint(args...)
	}).(pulumi.StringOutput)

	deployment, err := apigateway.NewDeployment(ctx, name+"-deployment", &apigateway.DeploymentArgs{
		RestApi: api.ID(),
		Triggers: pulumi.StringMap{
			"redeployment": redeployment,
		},
	}, pulumi.DependsOn([]pulumi.Resource{integration}))
	if err != nil {
		return nil, err
	}

	stage, err := apigateway.NewStage(ctx, name+"-stage", &apigateway.StageArgs{
		RestApi:    api.ID(),
		Deployment: deployment.ID(),
		StageName:  pulumi.String(cfg.Gateway.Stage),
		Tags:       resourceTags(cfg, name+"-stage"),
	})
	if err != nil {
		return nil, err
	}

	roles := make(map[policy.Role]*iam.Role, len(policy.Roles()))
	for _, role := range policy.Roles() {
		role := role
		execRole, err := iam.NewRole(ctx, name+"-"+string(role)+"-role", &iam.RoleArgs{
			AssumeRolePolicy: pulumi.String(sagemakerAssumeRolePolicy),
			Description:      pulumi.String("tracking server access tier: " + string(role)),
			Tags:             resourceTags(cfg, name+"-"+string(role)+"-role"),
		})
		if err != nil {
			return nil, err
		}
		doc := api.ExecutionArn.ApplyT(func(arn string) (string, error) {
			return policy.Document(role, arn, cfg.Gateway.Stage)
		}).(pulumi.StringOutput)
		_, err = iam.NewRolePolicy(ctx, name+"-"+string(role)+"-access", &iam.RolePolicyArgs{
			Role:   execRole.ID(),
			Policy: doc,
		})
		if err != nil {
			return nil, err
		}
		roles[role] = execRole
	}

	return &Gateway{Api: api, Stage: stage, Roles: roles}, nil
}

// deploymentFingerprint hashes the gateway wiring. A changed method or
// integration yields a new trigger value, which forces a fresh deployment
// snapshot for the stage.
func deploymentFingerprint(parts ...interface{}) (string, error) {
	payload, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
