package main

import (
	"strconv"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/appautoscaling"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecs"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const ecsTasksAssumeRolePolicy = `{
    "Version": "2012-10-17",
    "Statement": [{
        "Sid": "",
        "Effect": "Allow",
        "Principal": {
            "Service": "ecs-tasks.amazonaws.com"
        },
        "Action": "sts:AssumeRole"
    }]
}`

// Service is the horizontally scaled Fargate tier running the tracking
// server image behind the internal load balancer.
type Service struct {
	Cluster        *ecs.Cluster
	Service        *ecs.Service
	TaskDefinition *ecs.TaskDefinition
	SecurityGroup  *ec2.SecurityGroup
}

// serviceIngress admits the container port from inside the VPC. The NLB
// preserves source addresses, so the rule covers the whole internal range
// rather than a balancer security group.
func serviceIngress(cfg *Config) []ingressRule {
	return []ingressRule{
		{
			Protocol:    "tcp",
			FromPort:    cfg.Service.ContainerPort,
			ToPort:      cfg.Service.ContainerPort,
			Cidr:        cfg.Network.Cidr,
			Description: "tracking server from inside the VPC only",
		},
	}
}

func NewService(ctx *pulumi.Context, cfg *Config, nw *Network, db *Database, st *Storage, lbr *LoadBalancer) (*Service, error) {
	name := cfg.Project.Name

	region, err := aws.GetRegion(ctx, nil)
	if err != nil {
		return nil, err
	}

	logGroup, err := cloudwatch.NewLogGroup(ctx, name+"-server-logs", &cloudwatch.LogGroupArgs{
		NamePrefix:      pulumi.String("/ecs/" + cfg.Service.ServiceName + "-"),
		RetentionInDays: pulumi.Int(30),
		Tags:            resourceTags(cfg, name+"-server-logs"),
	})
	if err != nil {
		return nil, err
	}

	cluster, err := ecs.NewCluster(ctx, name+"-cluster", &ecs.ClusterArgs{
		Name: pulumi.String(cfg.Service.ClusterName),
		Settings: ecs.ClusterSettingArray{
			&ecs.ClusterSettingArgs{
				Name:  pulumi.String("containerInsights"),
				Value: pulumi.String("enabled"),
			},
		},
		Tags: resourceTags(cfg, cfg.Service.ClusterName),
	})
	if err != nil {
		return nil, err
	}

	executionRole, err := iam.NewRole(ctx, name+"-execution-role", &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(ecsTasksAssumeRolePolicy),
		Tags:             resourceTags(cfg, name+"-execution-role"),
	})
	if err != nil {
		return nil, err
	}
	_, err = iam.NewRolePolicyAttachment(ctx, name+"-execution-role-managed", &iam.RolePolicyAttachmentArgs{
		Role:      executionRole.Name,
		PolicyArn: pulumi.String("arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"),
	})
	if err != nil {
		return nil, err
	}
	// The execution role, not the task role, resolves the secret reference
	// at container start.
	_, err = iam.NewRolePolicy(ctx, name+"-execution-role-secret", &iam.RolePolicyArgs{
		Role: executionRole.ID(),
		Policy: pulumi.Sprintf(`{
    "Version": "2012-10-17",
    "Statement": [{
        "Effect": "Allow",
        "Action": "secretsmanager:GetSecretValue",
        "Resource": "%s"
    }]
}`, db.Secret.Arn),
	})
	if err != nil {
		return nil, err
	}

	taskRole, err := iam.NewRole(ctx, name+"-task-role", &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(ecsTasksAssumeRolePolicy),
		Tags:             resourceTags(cfg, name+"-task-role"),
	})
	if err != nil {
		return nil, err
	}
	_, err = iam.NewRolePolicy(ctx, name+"-task-role-artifacts", &iam.RolePolicyArgs{
		Role: taskRole.ID(),
		Policy: pulumi.Sprintf(`{
    "Version": "2012-10-17",
    "Statement": [{
        "Effect": "Allow",
        "Action": [
            "s3:ListBucket",
            "s3:GetBucketLocation"
        ],
        "Resource": "%s"
    }, {
        "Effect": "Allow",
        "Action": [
            "s3:GetObject",
            "s3:PutObject",
            "s3:DeleteObject"
        ],
        "Resource": "%s/*"
    }]
}`, st.ArtifactBucket.Arn, st.ArtifactBucket.Arn),
	})
	if err != nil {
		return nil, err
	}

	containerDefinitions := pulumi.All(
		st.ArtifactBucket.Bucket,
		db.Cluster.Endpoint,
		db.Secret.Arn,
		logGroup.Name,
	).ApplyT(func(args []interface{}) (string, error) {
		return renderContainerDefinitions(cfg, containerRuntime{
			Bucket:    args[0].(string),
			DbHost:    args[1].(string),
			SecretArn: args[2].(string),
			LogGroup:  args[3].(string),
			Region:    region.Name,
		})
	}).(pulumi.StringOutput)

	taskDefinition, err := ecs.NewTaskDefinition(ctx, name+"-task", &ecs.TaskDefinitionArgs{
		Family:                  pulumi.String(cfg.Service.ServiceName),
		Cpu:                     pulumi.String(strconv.Itoa(cfg.Service.Cpu)),
		Memory:                  pulumi.String(strconv.Itoa(cfg.Service.Memory)),
		NetworkMode:             pulumi.String("awsvpc"),
		RequiresCompatibilities: pulumi.StringArray{pulumi.String("FARGATE")},
		ExecutionRoleArn:        executionRole.Arn,
		TaskRoleArn:             taskRole.Arn,
		ContainerDefinitions:    containerDefinitions,
		RuntimePlatform: &ecs.TaskDefinitionRuntimePlatformArgs{
			OperatingSystemFamily: pulumi.String("LINUX"),
			CpuArchitecture:       pulumi.String("X86_64"),
		},
		Tags: resourceTags(cfg, cfg.Service.ServiceName),
	})
	if err != nil {
		return nil, err
	}

	sg, err := ec2.NewSecurityGroup(ctx, name+"-service-sg", &ec2.SecurityGroupArgs{
		VpcId:       nw.Vpc.ID(),
		Description: pulumi.String("tracking server tasks"),
		Ingress:     toIngressArray(serviceIngress(cfg)),
		Egress:      allEgress(),
		Tags:        resourceTags(cfg, name+"-service-sg"),
	})
	if err != nil {
		return nil, err
	}

	service, err := ecs.NewService(ctx, name+"-service", &ecs.ServiceArgs{
		Name:           pulumi.String(cfg.Service.ServiceName),
		Cluster:        cluster.Arn,
		TaskDefinition: taskDefinition.Arn,
		DesiredCount:   pulumi.Int(cfg.Service.DesiredCount),
		LaunchType:     pulumi.String("FARGATE"),
		NetworkConfiguration: &ecs.ServiceNetworkConfigurationArgs{
			Subnets:        subnetIDs(nw.PrivateSubnets),
			SecurityGroups: pulumi.StringArray{sg.ID()},
			AssignPublicIp: pulumi.Bool(false),
		},
		LoadBalancers: ecs.ServiceLoadBalancerArray{
			&ecs.ServiceLoadBalancerArgs{
				TargetGroupArn: lbr.TargetGroup.Arn,
				ContainerName:  pulumi.String(cfg.Service.ServiceName),
				ContainerPort:  pulumi.Int(cfg.Service.ContainerPort),
			},
		},
		Tags: resourceTags(cfg, cfg.Service.ServiceName),
	}, pulumi.DependsOn([]pulumi.Resource{lbr.Listener}))
	if err != nil {
		return nil, err
	}

	scalingTarget, err := appautoscaling.NewTarget(ctx, name+"-scaling-target", &appautoscaling.TargetArgs{
		MinCapacity:       pulumi.Int(cfg.Service.MinCount),
		MaxCapacity:       pulumi.Int(cfg.Service.MaxCount),
		ResourceId:        pulumi.Sprintf("service/%s/%s", cluster.Name, service.Name),
		ScalableDimension: pulumi.String("ecs:service:DesiredCount"),
		ServiceNamespace:  pulumi.String("ecs"),
	})
	if err != nil {
		return nil, err
	}
	_, err = appautoscaling.NewPolicy(ctx, name+"-cpu-scaling", &appautoscaling.PolicyArgs{
		PolicyType:        pulumi.String("TargetTrackingScaling"),
		ResourceId:        scalingTarget.ResourceId,
		ScalableDimension: scalingTarget.ScalableDimension,
		ServiceNamespace:  scalingTarget.ServiceNamespace,
		TargetTrackingScalingPolicyConfiguration: &appautoscaling.PolicyTargetTrackingScalingPolicyConfigurationArgs{
			PredefinedMetricSpecification: &appautoscaling.PolicyTargetTrackingScalingPolicyConfigurationPredefinedMetricSpecificationArgs{
				PredefinedMetricType: pulumi.String("ECSServiceAverageCPUUtilization"),
			},
			TargetValue:      pulumi.Float64(cfg.Service.CpuTarget),
			ScaleInCooldown:  pulumi.Int(120),
			ScaleOutCooldown: pulumi.Int(60),
		},
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		Cluster:        cluster,
		Service:        service,
		TaskDefinition: taskDefinition,
		SecurityGroup:  sg,
	}, nil
}
