package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lb"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// LoadBalancer fronts the tracking-server replicas with an internal
// network load balancer. The listener owns exactly one protocol/port pair
// and forwards to one ip-mode target group on the container port.
type LoadBalancer struct {
	Lb          *lb.LoadBalancer
	TargetGroup *lb.TargetGroup
	Listener    *lb.Listener
}

const listenerPort = 80

func NewLoadBalancer(ctx *pulumi.Context, cfg *Config, nw *Network) (*LoadBalancer, error) {
	name := cfg.Project.Name

	nlb, err := lb.NewLoadBalancer(ctx, name+"-nlb", &lb.LoadBalancerArgs{
		Internal:         pulumi.Bool(true),
		LoadBalancerType: pulumi.String("network"),
		Subnets:          subnetIDs(nw.PrivateSubnets),
		Tags:             resourceTags(cfg, name+"-nlb"),
	})
	if err != nil {
		return nil, err
	}

	targetGroup, err := lb.NewTargetGroup(ctx, name+"-tg", &lb.TargetGroupArgs{
		Port:       pulumi.Int(cfg.Service.ContainerPort),
		Protocol:   pulumi.String("TCP"),
		TargetType: pulumi.String("ip"),
		VpcId:      nw.Vpc.ID(),
		HealthCheck: &lb.TargetGroupHealthCheckArgs{
			Protocol: pulumi.String("HTTP"),
			Path:     pulumi.String("/health"),
			Port:     pulumi.String("traffic-port"),
		},
		Tags: resourceTags(cfg, name+"-tg"),
	})
	if err != nil {
		return nil, err
	}

	listener, err := lb.NewListener(ctx, name+"-listener", &lb.ListenerArgs{
		LoadBalancerArn: nlb.Arn,
		Port:            pulumi.Int(listenerPort),
		Protocol:        pulumi.String("TCP"),
		DefaultActions: lb.ListenerDefaultActionArray{
			&lb.ListenerDefaultActionArgs{
				Type:           pulumi.String("forward"),
				TargetGroupArn: targetGroup.Arn,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &LoadBalancer{Lb: nlb, TargetGroup: targetGroup, Listener: listener}, nil
}
