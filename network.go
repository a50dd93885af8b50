package main

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Subnet tier offsets inside the VPC range. Each tier gets a /24 per
// availability zone, carved from a disjoint region of the block.
const (
	publicTierOffset   = 0
	privateTierOffset  = 10
	isolatedTierOffset = 20
)

const (
	tierPublic   = "public"
	tierPrivate  = "private"
	tierIsolated = "isolated"
)

var subnetTiers = []string{tierPublic, tierPrivate, tierIsolated}

// routeTarget names where a tier's default route points.
type routeTarget string

const (
	routeInternetGateway routeTarget = "internet-gateway"
	routeNatGateway      routeTarget = "nat-gateway"
	routeNone            routeTarget = ""
)

// tierDefaultRoute is the complete default-route intent per tier. The
// isolated tier maps to routeNone: its route table must never acquire a
// 0.0.0.0/0 route, and unrecognized tiers get no egress path either.
func tierDefaultRoute(tier string) routeTarget {
	switch tier {
	case tierPublic:
		return routeInternetGateway
	case tierPrivate:
		return routeNatGateway
	}
	return routeNone
}

// Network holds the three subnet tiers. Isolated subnets carry no default
// route at all; private subnets egress through the NAT gateway; public
// subnets exist only to host that NAT gateway.
type Network struct {
	Vpc             *ec2.Vpc
	PublicSubnets   []*ec2.Subnet
	PrivateSubnets  []*ec2.Subnet
	IsolatedSubnets []*ec2.Subnet
}

func NewNetwork(ctx *pulumi.Context, cfg *Config) (*Network, error) {
	name := cfg.Project.Name

	vpc, err := ec2.NewVpc(ctx, name+"-vpc", &ec2.VpcArgs{
		CidrBlock:          pulumi.String(cfg.Network.Cidr),
		EnableDnsHostnames: pulumi.Bool(true),
		EnableDnsSupport:   pulumi.Bool(true),
		Tags:               resourceTags(cfg, name+"-vpc"),
	})
	if err != nil {
		return nil, err
	}

	nw := &Network{Vpc: vpc}
	for i, az := range cfg.Network.Azs {
		public, err := newTierSubnet(ctx, cfg, vpc, tierPublic, az, publicTierOffset+i, true)
		if err != nil {
			return nil, err
		}
		private, err := newTierSubnet(ctx, cfg, vpc, tierPrivate, az, privateTierOffset+i, false)
		if err != nil {
			return nil, err
		}
		isolated, err := newTierSubnet(ctx, cfg, vpc, tierIsolated, az, isolatedTierOffset+i, false)
		if err != nil {
			return nil, err
		}
		nw.PublicSubnets = append(nw.PublicSubnets, public)
		nw.PrivateSubnets = append(nw.PrivateSubnets, private)
		nw.IsolatedSubnets = append(nw.IsolatedSubnets, isolated)
	}

	igw, err := ec2.NewInternetGateway(ctx, name+"-igw", &ec2.InternetGatewayArgs{
		VpcId: vpc.ID(),
		Tags:  resourceTags(cfg, name+"-igw"),
	})
	if err != nil {
		return nil, err
	}

	eip, err := ec2.NewEip(ctx, name+"-nat-eip", &ec2.EipArgs{
		Domain: pulumi.String("vpc"),
		Tags:   resourceTags(cfg, name+"-nat-eip"),
	})
	if err != nil {
		return nil, err
	}

	nat, err := ec2.NewNatGateway(ctx, name+"-nat", &ec2.NatGatewayArgs{
		AllocationId: eip.ID(),
		SubnetId:     nw.PublicSubnets[0].ID(),
		Tags:         resourceTags(cfg, name+"-nat"),
	})
	if err != nil {
		return nil, err
	}

	// Each tier gets a dedicated table; its default route follows the
	// tier's declared intent. The isolated tier's intent is routeNone, so
	// a stray association can never hand it internet reachability.
	routeTables := make(map[string]*ec2.RouteTable, len(subnetTiers))
	for _, tier := range subnetTiers {
		rt, err := ec2.NewRouteTable(ctx, fmt.Sprintf("%s-%s-rt", name, tier), &ec2.RouteTableArgs{
			VpcId: vpc.ID(),
			Tags:  resourceTags(cfg, fmt.Sprintf("%s-%s-rt", name, tier)),
		})
		if err != nil {
			return nil, err
		}
		switch tierDefaultRoute(tier) {
		case routeInternetGateway:
			_, err = ec2.NewRoute(ctx, fmt.Sprintf("%s-%s-route", name, tier), &ec2.RouteArgs{
				RouteTableId:         rt.ID(),
				DestinationCidrBlock: pulumi.String("0.0.0.0/0"),
				GatewayId:            igw.ID(),
			})
		case routeNatGateway:
			_, err = ec2.NewRoute(ctx, fmt.Sprintf("%s-%s-route", name, tier), &ec2.RouteArgs{
				RouteTableId:         rt.ID(),
				DestinationCidrBlock: pulumi.String("0.0.0.0/0"),
				NatGatewayId:         nat.ID(),
			})
		case routeNone:
		}
		if err != nil {
			return nil, err
		}
		routeTables[tier] = rt
	}

	tierSubnets := map[string][]*ec2.Subnet{
		tierPublic:   nw.PublicSubnets,
		tierPrivate:  nw.PrivateSubnets,
		tierIsolated: nw.IsolatedSubnets,
	}
	for _, tier := range subnetTiers {
		for i, subnet := range tierSubnets[tier] {
			if err := associate(ctx, fmt.Sprintf("%s-%s-rta-%d", name, tier, i), subnet, routeTables[tier]); err != nil {
				return nil, err
			}
		}
	}
	return nw, nil
}

func newTierSubnet(ctx *pulumi.Context, cfg *Config, vpc *ec2.Vpc, tier, az string, index int, public bool) (*ec2.Subnet, error) {
	cidr, err := subnetCidr(cfg.Network.Cidr, index)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s-%s-%s", cfg.Project.Name, tier, az)
	return ec2.NewSubnet(ctx, name, &ec2.SubnetArgs{
		VpcId:               vpc.ID(),
		CidrBlock:           pulumi.String(cidr),
		AvailabilityZone:    pulumi.String(az),
		MapPublicIpOnLaunch: pulumi.Bool(public),
		Tags:                resourceTags(cfg, name),
	})
}

func associate(ctx *pulumi.Context, name string, subnet *ec2.Subnet, rt *ec2.RouteTable) error {
	_, err := ec2.NewRouteTableAssociation(ctx, name, &ec2.RouteTableAssociationArgs{
		SubnetId:     subnet.ID(),
		RouteTableId: rt.ID(),
	})
	return err
}

// subnetCidr carves the index-th /24 block out of the VPC range.
func subnetCidr(vpcCidr string, index int) (string, error) {
	_, block, err := net.ParseCIDR(vpcCidr)
	if err != nil {
		return "", err
	}
	ones, bits := block.Mask.Size()
	if bits != 32 {
		return "", fmt.Errorf("vpc cidr %s is not IPv4", vpcCidr)
	}
	if ones > 24 {
		return "", fmt.Errorf("vpc cidr %s is too small to carve /24 subnets", vpcCidr)
	}
	offset := uint32(index) << 8
	if index < 0 || uint64(offset)+256 > 1<<(32-ones) {
		return "", fmt.Errorf("subnet index %d does not fit in %s", index, vpcCidr)
	}
	base := binary.BigEndian.Uint32(block.IP.To4())
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, base+offset)
	return fmt.Sprintf("%s/24", ip), nil
}

// ingressRule is the plain-data form of a security group ingress entry,
// kept separate from the pulumi args so rule sets stay checkable.
type ingressRule struct {
	Protocol    string
	FromPort    int
	ToPort      int
	Cidr        string
	Description string
}

func toIngressArray(rules []ingressRule) ec2.SecurityGroupIngressArray {
	out := make(ec2.SecurityGroupIngressArray, 0, len(rules))
	for _, r := range rules {
		out = append(out, &ec2.SecurityGroupIngressArgs{
			Protocol:    pulumi.String(r.Protocol),
			FromPort:    pulumi.Int(r.FromPort),
			ToPort:      pulumi.Int(r.ToPort),
			CidrBlocks:  pulumi.StringArray{pulumi.String(r.Cidr)},
			Description: pulumi.String(r.Description),
		})
	}
	return out
}

func allEgress() ec2.SecurityGroupEgressArray {
	return ec2.SecurityGroupEgressArray{
		&ec2.SecurityGroupEgressArgs{
			Protocol:    pulumi.String("-1"),
			FromPort:    pulumi.Int(0),
			ToPort:      pulumi.Int(0),
			CidrBlocks:  pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			Description: pulumi.String("all egress"),
		},
	}
}

func subnetIDs(subnets []*ec2.Subnet) pulumi.StringArray {
	out := make(pulumi.StringArray, 0, len(subnets))
	for _, s := range subnets {
		out = append(out, s.ID())
	}
	return out
}
